package server

import (
	"github.com/pkg/errors"
)

func (r *CreateAccountRequest) Validate() error {
	if r.Email == "" {
		return errors.New("request.Email was empty")
	} else if r.DisplayName == "" {
		return errors.New("request.DisplayName was empty")
	} else if r.PasswordHash == "" {
		return errors.New("request.PasswordHash was empty")
	}
	return nil
}

func (r *GetAccountRequest) Validate() error {
	if r.AccountID == "" {
		return errors.New("request.AccountID was empty")
	}
	return nil
}

func (r *GetCredentialsRequest) Validate() error {
	if r.Email == "" {
		return errors.New("request.Email was empty")
	}
	return nil
}

func (r *UpdateAccountRequest) Validate() error {
	if r.AccountID == "" {
		return errors.New("request.AccountID was empty")
	} else if r.DisplayName == "" && r.PasswordHash == "" {
		return errors.New("request had nothing to update")
	}
	return nil
}

func (r *GetPostRequest) Validate() error {
	if r.PostID == "" {
		return errors.New("request.PostID was empty")
	}
	return nil
}

func (r *CreatePostRequest) Validate() error {
	if r.CallerID == "" {
		return errors.New("request.CallerID was empty")
	} else if r.Content == "" {
		return errors.New("request.Content was empty")
	}
	return nil
}

func (r *DeletePostRequest) Validate() error {
	if r.CallerID == "" {
		return errors.New("request.CallerID was empty")
	} else if r.PostID == "" {
		return errors.New("request.PostID was empty")
	}
	return nil
}

func (r *LikeRequest) Validate() error {
	if r.CallerID == "" {
		return errors.New("request.CallerID was empty")
	} else if r.PostID == "" {
		return errors.New("request.PostID was empty")
	}
	return nil
}

func (r *ListCommentsRequest) Validate() error {
	if r.PostID == "" {
		return errors.New("request.PostID was empty")
	}
	return nil
}

func (r *GetCommentRequest) Validate() error {
	if r.PostID == "" {
		return errors.New("request.PostID was empty")
	} else if r.CommentID == "" {
		return errors.New("request.CommentID was empty")
	}
	return nil
}

func (r *CreateCommentRequest) Validate() error {
	if r.CallerID == "" {
		return errors.New("request.CallerID was empty")
	} else if r.PostID == "" {
		return errors.New("request.PostID was empty")
	} else if r.Content == "" {
		return errors.New("request.Content was empty")
	}
	return nil
}

func (r *DeleteCommentRequest) Validate() error {
	if r.CallerID == "" {
		return errors.New("request.CallerID was empty")
	} else if r.PostID == "" {
		return errors.New("request.PostID was empty")
	} else if r.CommentID == "" {
		return errors.New("request.CommentID was empty")
	}
	return nil
}

func (r *FollowRequest) Validate() error {
	if r.CallerID == "" {
		return errors.New("request.CallerID was empty")
	} else if r.TargetUserID == "" {
		return errors.New("request.TargetUserID was empty")
	} else if r.CallerID == r.TargetUserID {
		return errors.New("request.TargetUserID was the caller")
	}
	return nil
}

func (r *ListFollowedRequest) Validate() error {
	if r.CallerID == "" {
		return errors.New("request.CallerID was empty")
	}
	return nil
}
