package dispatchvalidator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	common "github.com/ajayykmr/billing-notifier/internal/adapters/common"
	"github.com/ajayykmr/billing-notifier/internal/config"
	"github.com/ajayykmr/billing-notifier/internal/models"
	"github.com/ajayykmr/billing-notifier/internal/util"
	"github.com/ajayykmr/billing-notifier/internal/worker"
)

const (
	maxMetaEntries  = 16
	maxMetaKeyLen   = 64
	maxMetaValueLen = 256
)

// Validator implements worker.Validator for dispatch commands.
type Validator struct {
	logger zerolog.Logger
	cfg    config.ValidationConfig
}

// New constructs a Validator using the supplied validation configuration.
func New(cfg config.ValidationConfig, logger zerolog.Logger) *Validator {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Validator{logger: logger, cfg: cfg}
}

// ParseAndValidate decodes a DispatchCommand strictly and turns it into a
// dispatch request. On failure the returned job may still carry the decoded
// command so the DLQ record can reference it.
func (v *Validator) ParseAndValidate(ctx context.Context, payload []byte) (*worker.Job, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, common.WrapValidation(errors.New("dispatch validator: payload is empty"))
	}

	var cmd models.DispatchCommand
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		return nil, common.WrapValidation(fmt.Errorf("dispatch validator: decode: %v", err))
	}

	job := &worker.Job{Command: cmd}
	req, err := v.validate(&job.Command)
	if err != nil {
		v.logger.Debug().
			Str("command_id", cmd.CommandID).
			Err(err).
			Msg("dispatch command rejected")
		return job, common.WrapValidation(err)
	}
	job.Request = req
	return job, nil
}

func (v *Validator) validate(cmd *models.DispatchCommand) (models.DispatchRequest, error) {
	id, err := util.ParseUUIDv4(cmd.CommandID)
	if err != nil {
		return models.DispatchRequest{}, fmt.Errorf("command_id: %w", err)
	}
	cmd.CommandID = id.String()

	if cmd.CreatedAt.IsZero() {
		return models.DispatchRequest{}, errors.New("created_at is required")
	}

	if strings.TrimSpace(cmd.Mobile) != "" {
		mobile, err := util.NormalizeMobile(cmd.Mobile)
		if err != nil {
			return models.DispatchRequest{}, fmt.Errorf("mobile: %w", err)
		}
		cmd.Mobile = mobile
	}

	segment, err := models.ParseSegment(cmd.Segment, cmd.Day, cmd.Mobile)
	if err != nil {
		return models.DispatchRequest{}, fmt.Errorf("segment: %w", err)
	}

	cmd.Message = strings.TrimSpace(cmd.Message)
	if err := util.EnsureMaxRunes("message", cmd.Message, v.cfg.SMSBodyMax); err != nil {
		return models.DispatchRequest{}, err
	}

	meta, err := util.ValidateMetadata(cmd.Meta, maxMetaEntries, maxMetaKeyLen, maxMetaValueLen)
	if err != nil {
		return models.DispatchRequest{}, err
	}
	cmd.Meta = meta

	return models.DispatchRequest{Segment: segment, Message: cmd.Message}, nil
}
