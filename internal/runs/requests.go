package runs

import (
	"github.com/go-playground/validator/v10"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/session"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

var validate = validator.New()

// RunRequest starts a full analysis of staged reads against staged references.
type RunRequest struct {
	ReadServerID string           `json:"readServerId" validate:"required,len=10,numeric"`
	ReadFiles    []string         `json:"readFiles" validate:"required,min=1,dive,required"`
	RefServerID  string           `json:"refServerId" validate:"required,len=10,numeric"`
	RefFiles     []string         `json:"refFiles" validate:"required,min=1,dive,required"`
	Renamed      types.RenameMap  `json:"renamedFiles"`
	Options      types.RunOptions `json:"options"`
}

// NewRunRequest returns a request whose options hold the defaults, so a
// decoded body only overrides what it names.
func NewRunRequest() *RunRequest {
	return &RunRequest{Options: types.DefaultRunOptions()}
}

// Validate checks the request shape and every file name.
func (r *RunRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return failure.Wrap(failure.KindValidation, err, "invalid run request")
	}
	for _, names := range [][]string{r.ReadFiles, r.RefFiles} {
		for _, name := range names {
			if err := session.ValidateName(name); err != nil {
				return err
			}
		}
	}
	for stored := range r.Renamed {
		if err := session.ValidateName(stored); err != nil {
			return err
		}
	}
	return nil
}

// RestoreRequest re-runs post-processing over an existing result session.
type RestoreRequest struct {
	ResServerID string `json:"resServerId" validate:"required,len=10,numeric"`
	RefServerID string `json:"refServerId" validate:"required,len=10,numeric"`
	RefFile     string `json:"refFile"`
	Name        string `json:"name"`
}

// Validate checks the request shape.
func (r *RestoreRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return failure.Wrap(failure.KindValidation, err, "invalid restore request")
	}
	if r.RefFile != "" {
		return session.ValidateName(r.RefFile)
	}
	return nil
}

// PackageRequest archives a result session.
type PackageRequest struct {
	ServerID string `json:"serverId" validate:"required,len=10,numeric"`
}

// Validate checks the request shape.
func (r *PackageRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return failure.Wrap(failure.KindValidation, err, "invalid package request")
	}
	return nil
}
