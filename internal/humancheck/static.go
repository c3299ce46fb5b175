package humancheck

import "context"

// StaticProvider returns a fixed, pre-computed token.
type StaticProvider struct {
	Value string
}

func NewStaticProvider(value string) *StaticProvider {
	return &StaticProvider{Value: value}
}

func (p *StaticProvider) Token(ctx context.Context) (string, error) {
	if p.Value == "" {
		return "", &Error{Message: "no static token configured"}
	}
	return p.Value, nil
}
