package models

// LikeResponse reports the like state of a post after a like or unlike.
type LikeResponse struct {
	PostID string `json:"post_id"`
	Liked  bool   `json:"liked"` // True if the caller currently likes the post
	Likes  int    `json:"likes"`
}
