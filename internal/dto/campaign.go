package dto

type StartBulkResponse struct {
	Status string `json:"status"`
	Total  int    `json:"total"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// StartBulkForm is the non-file part of the /start-bulk multipart form.
type StartBulkForm struct {
	Message string `validate:"required"`
	Delay   *int   `validate:"omitempty,min=0"`
	Numbers string
}

type ParseCSVResponse struct {
	Status  string   `json:"status"`
	Count   int      `json:"count"`
	Numbers []string `json:"numbers"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	BridgeOnline bool   `json:"bridge_online"`
}
