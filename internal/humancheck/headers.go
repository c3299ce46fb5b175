package humancheck

import "net/http"

const (
	secChUA               = `"Chromium";v="140", "Not=A?Brand";v="24", "Google Chrome";v="140"`
	defaultReferer        = "https://cursor.com/en-US/learn/how-ai-models-work"
	defaultAcceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
)

// SetBrowserHeaders applies the client hints of a desktop Chrome matching fp.
func SetBrowserHeaders(h http.Header, fp Fingerprint) {
	h.Set("User-Agent", fp.UserAgent)
	h.Set("sec-ch-ua", secChUA)
	h.Set("sec-ch-ua-arch", `"x86"`)
	h.Set("sec-ch-ua-bitness", `"64"`)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", `"Windows"`)
	h.Set("sec-ch-ua-platform-version", `"19.0.0"`)
	h.Set("sec-fetch-site", "same-origin")
	h.Set("referer", defaultReferer)
	h.Set("accept-language", defaultAcceptLanguage)
}
