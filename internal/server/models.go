package server

// listModels renders the configured model ids in the /v1/models shape.
func listModels(ids []string, created int64) modelsResponse {
	data := make([]modelEntry, 0, len(ids))
	for _, id := range ids {
		data = append(data, modelEntry{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "",
		})
	}
	return modelsResponse{Object: "list", Data: data}
}
