package enhance

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

// ErrInvalidMode is returned by ParseMode for anything but single or chain.
var ErrInvalidMode = errors.New("mode must be one of single, chain")

var validate = validator.New()

type modeOption struct {
	Mode string `validate:"omitempty,oneof=single chain"`
}

// ParseMode normalises a client supplied mode. An empty value is valid and
// means the service default.
func ParseMode(raw string) (models.Mode, error) {
	opt := modeOption{Mode: strings.ToLower(strings.TrimSpace(raw))}
	if err := validate.Struct(opt); err != nil {
		return "", ErrInvalidMode
	}
	return models.Mode(opt.Mode), nil
}
