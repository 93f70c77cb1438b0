package helper

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/helpers/apperr"
)

// FromAppError memetakan error service (apperr) ke response JSON standar.
// *fiber.Error dipakai apa adanya; selain itu 500.
func FromAppError(c *fiber.Ctx, err error) error {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		se *apperr.StateError
		ce *apperr.ContentionError
		pe *apperr.PartialExecutionError
		fe *fiber.Error
	)
	switch {
	case errors.As(err, &ve):
		field := ve.Field
		if field == "" {
			field = "_"
		}
		return JsonValidationError(c, map[string][]string{field: {ve.Message}})
	case errors.As(err, &nf):
		return JsonError(c, fiber.StatusNotFound, nf.Error())
	case errors.As(err, &se):
		return JsonErrorCode(c, fiber.StatusConflict, "INVALID_STATE", se.Error())
	case errors.As(err, &pe):
		// snapshot id wajib ikut, admin butuh untuk rekonsiliasi manual
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success:    false,
			Message:    pe.Error(),
			ErrorCode:  "PARTIAL_EXECUTION",
			SnapshotID: pe.SnapshotID,
		})
	case errors.As(err, &ce), apperr.Retryable(err):
		return JsonErrorCode(c, fiber.StatusConflict, "CONTENTION", err.Error())
	case errors.As(err, &fe):
		return JsonError(c, fe.Code, fe.Message)
	default:
		return JsonError(c, fiber.StatusInternalServerError, err.Error())
	}
}
