package response

import "github.com/gin-gonic/gin"

const (
	CodeBadRequest         = 40000
	CodeInvalidFileType    = 40001
	CodeDocumentParse      = 40002
	CodeNoDocument         = 40003
	CodeInvalidSession     = 40004
	CodeHistoryDisabled    = 40401
	CodeInternalServer     = 50000
	CodeUpstreamCall       = 50001
	CodeUnexpectedResponse = 50002
)

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Detail string `json:"detail"`
	Code   int    `json:"code"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Error(c *gin.Context, httpStatus, code int, detail string) {
	c.AbortWithStatusJSON(httpStatus, ErrorBody{
		Detail: detail,
		Code:   code,
	})
}
