package server

import (
	"errors"

	"minisocial/internal/notifications"
	"minisocial/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /api/posts
// @Summary Create a post
// @Description Create a post with optional text and an optional image file. Both may be omitted.
// @Tags posts
// @Accept multipart/form-data,json
// @Produce json
// @Param content formData string false "Post text"
// @Param image formData file false "Image file"
// @Success 201 {object} models.Post
// @Failure 401 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var body postBody
	if err := parseBody(c, &body); err != nil {
		return nil
	}
	img, err := s.readImage(c)
	if err != nil {
		if errors.Is(err, errResponseWritten) {
			return nil
		}
		return respondServiceError(c, err, msgCreateFailed)
	}

	post, err := s.postService.CreatePost(ctx, service.CreatePostInput{
		Author:  caller(c),
		Content: body.Content,
		Image:   img,
	})
	if err != nil {
		return respondServiceError(c, err, msgCreateFailed)
	}

	s.publishFeedEvent(ctx, notifications.EventNewPost, post)
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPosts handles GET /api/posts
// @Summary List the feed
// @Description Posts newest first. page defaults to 1, limit to 10 (max 50).
// @Tags posts
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} object{posts=[]models.Post,page=int,limit=int}
// @Failure 500 {object} models.ErrorResponse
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parseFeedPage(c)

	posts, err := s.postService.ListPosts(c.UserContext(), page.Page, page.Limit)
	if err != nil {
		return respondServiceError(c, err, msgServerError)
	}

	return c.JSON(fiber.Map{
		"posts": posts,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

// GetPost handles GET /api/posts/:id
// @Summary Get a post
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.postService.GetPost(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, msgServerError)
	}
	return c.JSON(post)
}

// ToggleLike handles POST /api/posts/:id/like
// @Summary Like or unlike a post
// @Description Adds the caller to the post's likes, or removes them if already present.
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	ctx := c.UserContext()
	post, err := s.postService.ToggleLike(ctx, caller(c), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, msgServerError)
	}

	s.publishFeedEvent(ctx, notifications.EventPostUpdated, post)
	return c.JSON(post)
}

// AddComment handles POST /api/posts/:id/comment
// @Summary Comment on a post
// @Tags posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param request body object{text=string} true "Comment"
// @Success 200 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id}/comment [post]
func (s *Server) AddComment(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var body commentBody
	if err := parseBody(c, &body); err != nil {
		return nil
	}

	post, err := s.postService.AddComment(ctx, caller(c), c.Params("id"), body.Text)
	if err != nil {
		return respondServiceError(c, err, msgServerError)
	}

	s.publishFeedEvent(ctx, notifications.EventPostUpdated, post)
	return c.JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
// @Summary Edit a post
// @Description Author only. Non-empty content replaces the text; an image file replaces the image.
// @Tags posts
// @Accept multipart/form-data,json
// @Produce json
// @Param id path string true "Post ID"
// @Param content formData string false "New text"
// @Param image formData file false "New image"
// @Success 200 {object} models.Post
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	ctx := c.UserContext()

	if _, err := s.postService.Authorize(ctx, caller(c), c.Params("id")); err != nil {
		return respondServiceError(c, err, msgServerError)
	}

	var body postBody
	if err := parseBody(c, &body); err != nil {
		return nil
	}
	img, err := s.readImage(c)
	if err != nil {
		if errors.Is(err, errResponseWritten) {
			return nil
		}
		return respondServiceError(c, err, msgServerError)
	}

	post, err := s.postService.UpdatePost(ctx, service.UpdatePostInput{
		Caller:  caller(c),
		PostID:  c.Params("id"),
		Content: body.Content,
		Image:   img,
	})
	if err != nil {
		return respondServiceError(c, err, msgServerError)
	}

	s.publishFeedEvent(ctx, notifications.EventPostUpdated, post)
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
// @Summary Delete a post
// @Description Author only. Broadcasts post-deleted with the post id.
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} object{message=string,id=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")

	if err := s.postService.DeletePost(ctx, caller(c), id); err != nil {
		return respondServiceError(c, err, msgServerError)
	}

	s.publishFeedEvent(ctx, notifications.EventPostDeleted, id)
	return c.JSON(fiber.Map{
		"message": "Post deleted successfully",
		"id":      id,
	})
}
