package server

import (
	"errors"
	"strings"

	"github.com/alexjbarnes/mdnotes/internal/config"
	"github.com/alexjbarnes/mdnotes/internal/models"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// maxTitleLen keeps generated file names within common filesystem limits.
const maxTitleLen = 200

// notDotted rejects paths with "." or ".." segments.
var notDotted = validation.By(func(value any) error {
	s, _ := value.(string)
	for _, seg := range strings.Split(s, "/") {
		if seg == "." || seg == ".." {
			return errors.New("must not contain . or .. segments")
		}
	}

	return nil
})

type createNoteRequest struct {
	Dir   string `json:"dir"`
	Title string `json:"title"`
}

func (r *createNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Dir, notDotted),
		validation.Field(&r.Title,
			validation.Required,
			validation.Length(1, maxTitleLen),
			validation.By(func(any) error {
				if strings.Contains(r.Title, "/") {
					return errors.New("must not contain /")
				}
				return nil
			}),
		),
	)
}

type createFolderRequest struct {
	Path string `json:"path"`
}

func (r *createFolderRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required, notDotted),
	)
}

type deleteItemRequest struct {
	Path     string          `json:"path"`
	ItemType models.ItemType `json:"itemType"`
}

func (r *deleteItemRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required, notDotted),
		validation.Field(&r.ItemType, validation.Required, validation.In(models.ItemFile, models.ItemFolder)),
	)
}

type updateNoteRequest struct {
	models.NoteUpdate
}

func (r *updateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r.NoteUpdate,
		validation.Field(&r.NoteUpdate.Title, validation.NilOrNotEmpty, validation.Length(1, maxTitleLen)),
		validation.Field(&r.NoteUpdate.Tags, validation.Each(validation.Required)),
	)
}

type credentialsRequest struct {
	Token string `json:"token"`
	Repo  string `json:"repo"`
}

// Validate allows both fields empty, which clears the saved credentials.
func (r *credentialsRequest) Validate() error {
	if r.Token == "" && r.Repo == "" {
		return nil
	}

	return validation.ValidateStruct(r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Repo, validation.Required, validation.By(func(any) error {
			return config.ValidateRepo(r.Repo)
		})),
	)
}
