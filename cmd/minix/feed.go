package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jlym/minix/internal/app"
	"github.com/jlym/minix/internal/feed"
)

func parseScope(value string) (feed.Scope, error) {
	for _, scope := range []feed.Scope{feed.ScopeOwn, feed.ScopeTimeline, feed.ScopeFollowing} {
		if scope.String() == value {
			return scope, nil
		}
	}
	return 0, fmt.Errorf("unknown scope \"%s\", want own, timeline or following", value)
}

// loadTimeline loads every post so commands can act on any of them.
func loadTimeline(ctx context.Context, a *app.App) (string, error) {
	identity := a.Session.CurrentIdentity()
	if identity == "" {
		return "", feed.ErrNotSignedIn
	}
	if _, err := a.Feed.LoadFeed(ctx, identity, feed.ScopeTimeline); err != nil {
		return "", err
	}
	return identity, nil
}

func printPost(post feed.PostView) {
	liked := ""
	if post.LikedByMe {
		liked = " (liked)"
	}
	fmt.Printf("%s  %s  %s  %d likes%s\n    %s\n",
		post.PostID,
		post.AuthorName,
		post.CreatedAt.Local().Format(time.DateTime),
		post.LikeCount,
		liked,
		post.Content,
	)
}

func printComment(comment feed.CommentView) {
	fmt.Printf("    %s  %s  %s\n        %s\n",
		comment.CommentID,
		comment.AuthorName,
		comment.CreatedAt.Local().Format(time.DateTime),
		comment.Content,
	)
}

func (c *cli) feedCommands() []*cobra.Command {
	var scopeName string

	feedCommand := &cobra.Command{
		Use:   "feed",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
			scope, err := parseScope(scopeName)
			if err != nil {
				return err
			}
			posts, err := a.Feed.LoadFeed(ctx, a.Session.CurrentIdentity(), scope)
			if err != nil {
				return err
			}
			if len(posts) == 0 {
				fmt.Println("no posts")
			}
			for _, post := range posts {
				printPost(post)
			}
			return nil
		}),
	}
	feedCommand.Flags().StringVar(&scopeName, "scope", feed.ScopeOwn.String(), "own, timeline or following")

	return []*cobra.Command{
		feedCommand,
		{
			Use:   "post <text>",
			Short: "Publish a post",
			Args:  cobra.MinimumNArgs(1),
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				post, err := a.Feed.CreatePost(ctx, a.Session.CurrentIdentity(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Printf("posted %s\n", post.PostID)
				return nil
			}),
		},
		{
			Use:   "delete <post id>",
			Short: "Delete one of your posts",
			Args:  cobra.ExactArgs(1),
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				identity, err := loadTimeline(ctx, a)
				if err != nil {
					return err
				}
				return a.Feed.DeletePost(ctx, identity, args[0])
			}),
		},
		{
			Use:   "like <post id>",
			Short: "Like or unlike a post",
			Args:  cobra.ExactArgs(1),
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				identity, err := loadTimeline(ctx, a)
				if err != nil {
					return err
				}
				liked, err := a.Feed.ToggleLike(ctx, identity, args[0])
				if err != nil {
					return err
				}
				if post, ok := a.Feed.Post(args[0]); ok {
					fmt.Printf("liked=%t, %d likes\n", liked, post.LikeCount)
				}
				return nil
			}),
		},
		{
			Use:   "replies <post id>",
			Short: "Show the replies to a post",
			Args:  cobra.ExactArgs(1),
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				if _, err := loadTimeline(ctx, a); err != nil {
					return err
				}
				comments, err := a.Feed.LoadReplies(ctx, args[0], false)
				if err != nil {
					return err
				}
				if post, ok := a.Feed.Post(args[0]); ok {
					printPost(post)
				}
				for _, comment := range comments {
					printComment(comment)
				}
				return nil
			}),
		},
		{
			Use:   "comment <post id> <text>",
			Short: "Reply to a post",
			Args:  cobra.MinimumNArgs(2),
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				identity, err := loadTimeline(ctx, a)
				if err != nil {
					return err
				}
				comment, err := a.Feed.AddComment(ctx, identity, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Printf("commented %s\n", comment.CommentID)
				return nil
			}),
		},
		{
			Use:   "uncomment <post id> <comment id>",
			Short: "Delete one of your comments",
			Args:  cobra.ExactArgs(2),
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				identity, err := loadTimeline(ctx, a)
				if err != nil {
					return err
				}
				if _, err := a.Feed.LoadReplies(ctx, args[0], false); err != nil {
					return err
				}
				return a.Feed.DeleteComment(ctx, identity, args[0], args[1])
			}),
		},
		{
			Use:   "follow <account id>",
			Short: "Follow or unfollow an account",
			Args:  cobra.ExactArgs(1),
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				following, err := a.Feed.ToggleFollow(ctx, a.Session.CurrentIdentity(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("following=%t\n", following)
				return nil
			}),
		},
	}
}
