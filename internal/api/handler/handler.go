package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/postboard/internal/service"
	"github.com/d60-Lab/postboard/pkg/response"
)

// Handler 聚合全部 HTTP 处理器依赖
type Handler struct {
	userService        *service.UserService
	postService        *service.PostService
	postQuery          *service.PostQueryService
	interactionService *service.InteractionService
	commentService     *service.CommentService
	bookmarkService    *service.BookmarkService
}

func NewHandler(
	userService *service.UserService,
	postService *service.PostService,
	postQuery *service.PostQueryService,
	interactionService *service.InteractionService,
	commentService *service.CommentService,
	bookmarkService *service.BookmarkService,
) *Handler {
	return &Handler{
		userService:        userService,
		postService:        postService,
		postQuery:          postQuery,
		interactionService: interactionService,
		commentService:     commentService,
		bookmarkService:    bookmarkService,
	}
}

type pageResult struct {
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	List     interface{} `json:"list"`
}

// fail 将业务错误映射为 HTTP 状态码
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPostNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrUnknownAuthor),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrEmailTaken):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
