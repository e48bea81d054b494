package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/postboard/internal/service"
	"github.com/d60-Lab/postboard/pkg/middleware"
	"github.com/d60-Lab/postboard/pkg/response"
)

type commentRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
}

// ListPosts 帖子列表（最新优先）
// @Summary 帖子列表
// @Description 作者、点赞数、评论数、收藏状态实时补全；某项补全超时则该项取默认值
// @Tags 帖子
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=pageResult}
// @Failure 500 {object} response.Response
// @Router /api/v1/posts [get]
func (h *Handler) ListPosts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	list, err := h.postQuery.ListPosts(c.Request.Context(), middleware.UserID(c), page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pageResult{Page: page, PageSize: pageSize, List: list})
}

// ListHot 热门帖子
// @Summary 热门帖子
// @Tags 帖子
// @Produce json
// @Param limit query int false "数量" default(20)
// @Success 200 {object} response.Response
// @Router /api/v1/posts/hot [get]
func (h *Handler) ListHot(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := h.postQuery.ListHot(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// GetPost 帖子详情
// @Summary 帖子详情
// @Tags 帖子
// @Produce json
// @Param id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	post, err := h.postQuery.GetPost(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, post)
}

// CreatePost 发帖
// @Summary 发帖
// @Tags 帖子
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreatePostInput true "帖子内容"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req service.CreatePostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.postService.Create(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, post)
}

// DeletePost 删除自己的帖子
// @Summary 删除帖子
// @Tags 帖子
// @Security BearerAuth
// @Param id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id} [delete]
func (h *Handler) DeletePost(c *gin.Context) {
	if err := h.postService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// ToggleLike 点赞/取消点赞
// @Summary 点赞切换
// @Tags 互动
// @Security BearerAuth
// @Param id path string true "帖子ID"
// @Success 200 {object} response.Response{data=map[string]bool}
// @Router /api/v1/posts/{id}/like [post]
func (h *Handler) ToggleLike(c *gin.Context) {
	liked, err := h.interactionService.ToggleLike(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"liked": liked})
}

// AddComment 评论
// @Summary 发表评论
// @Tags 互动
// @Accept json
// @Security BearerAuth
// @Param id path string true "帖子ID"
// @Param request body commentRequest true "评论内容"
// @Success 201 {object} response.Response
// @Router /api/v1/posts/{id}/comments [post]
func (h *Handler) AddComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	comment, err := h.commentService.Add(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, comment)
}

// ToggleBookmark 收藏/取消收藏
// @Summary 收藏切换
// @Tags 收藏
// @Security BearerAuth
// @Param id path string true "帖子ID"
// @Success 200 {object} response.Response{data=map[string]bool}
// @Router /api/v1/posts/{id}/bookmark [post]
func (h *Handler) ToggleBookmark(c *gin.Context) {
	on, err := h.bookmarkService.Toggle(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"bookmarked": on})
}

// ListBookmarks 我的收藏
// @Summary 我的收藏
// @Tags 收藏
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=pageResult}
// @Router /api/v1/me/bookmarks [get]
func (h *Handler) ListBookmarks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	list, err := h.postQuery.ListBookmarked(c.Request.Context(), middleware.UserID(c), page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, pageResult{Page: page, PageSize: pageSize, List: list})
}
