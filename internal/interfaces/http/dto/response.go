package dto

import "time"

// Page size bounds for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code      string        `json:"code"`
	Message   string        `json:"message"`
	RequestID string        `json:"request_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Details   *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails carries machine-readable context for an error. Quantities are
// pointers so that zero available stock is still sent.
type ErrorDetails struct {
	Available         *int64             `json:"available,omitempty"`
	Requested         *int64             `json:"requested,omitempty"`
	RetryAfterSeconds int                `json:"retry_after_seconds,omitempty"` // mirrors Retry-After
	Fields            []ValidationDetail `json:"fields,omitempty"`
}

type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Meta describes one page of a list answer.
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// OK wraps data in a success envelope.
func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Paged wraps one page of results; req is normalized first.
func Paged(data any, total int64, req ListRequest) Response {
	req = req.Normalized()
	size := int64(req.PageSize)
	return Response{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Total:      total,
			Page:       req.Page,
			PageSize:   req.PageSize,
			TotalPages: int((total + size - 1) / size),
		},
	}
}

// Fail builds an error envelope. Domain codes are mapped to their ERR_ form.
func Fail(code, message, requestID string) Response {
	return Response{
		Error: &ErrorInfo{
			Code:      NormalizeErrorCode(code),
			Message:   message,
			RequestID: requestID,
			Timestamp: time.Now(),
		},
	}
}

// Invalid builds an ERR_VALIDATION envelope listing the failing fields.
func Invalid(message, requestID string, fields []ValidationDetail) Response {
	resp := Fail(ErrCodeValidation, message, requestID)
	if len(fields) > 0 {
		resp.Error.Details = &ErrorDetails{Fields: fields}
	}
	return resp
}

// WithDetails attaches details to an error envelope. Success envelopes are
// returned unchanged.
func (r Response) WithDetails(details *ErrorDetails) Response {
	if r.Error != nil {
		r.Error.Details = details
	}
	return r
}

// ListRequest is the page/page_size query shared by list endpoints.
type ListRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// Normalized fills in page 1 and the default page size, and caps the size.
func (r ListRequest) Normalized() ListRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	switch {
	case r.PageSize <= 0:
		r.PageSize = DefaultPageSize
	case r.PageSize > MaxPageSize:
		r.PageSize = MaxPageSize
	}
	return r
}

// IDRequest binds a UUID path parameter.
type IDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}
