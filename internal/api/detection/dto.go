package detection

type AnalyzeRequest struct {
	ImageBase64 string `json:"imageBase64" form:"imageBase64" validate:"required"`
}

type CropRequest struct {
	ImageBase64 string    `json:"imageBase64" validate:"required"`
	Box         []float64 `json:"box" validate:"required,len=4"`
	Padding     *float64  `json:"padding" validate:"omitempty,gte=0,lte=1"`
}
