package source

type SourceResponse struct {
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
}

type SourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}
