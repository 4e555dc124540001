package notes

import (
	"context"

	"github.com/alexjbarnes/mdnotes/internal/github"
	"github.com/alexjbarnes/mdnotes/internal/models"
)

//go:generate mockgen -source=remote.go -destination=mock_remote.go -package=notes

// Remote is the repository the workspace commits to. *github.Client
// implements it.
type Remote interface {
	Get(ctx context.Context, creds models.Credentials, p string) (*github.File, error)
	Put(ctx context.Context, creds models.Credentials, p, content, message string) (string, error)
	Delete(ctx context.Context, creds models.Credentials, p, message string) error
	Walk(ctx context.Context, creds models.Credentials, dir string, fn func(github.Entry) error) error
}

var _ Remote = (*github.Client)(nil)
