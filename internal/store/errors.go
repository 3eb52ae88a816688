package store

import (
	"errors"

	"aquadeck/internal/apiclient"
	"aquadeck/internal/model"
)

// Error codes the backend attaches to failed command records.
const (
	CodeDeviceNotFound        = "device_not_found"
	CodeDeviceDisconnected    = "device_disconnected"
	CodeDeviceBusy            = "device_busy"
	CodeDeviceTimeout         = "device_timeout"
	CodeCommandInvalid        = "command_invalid"
	CodeCommandTimeout        = "command_timeout"
	CodeCommandFailed         = "command_failed"
	CodeCommandCancelled      = "command_cancelled"
	CodeValidationError       = "validation_error"
	CodeInvalidArguments      = "invalid_arguments"
	CodeConnectionError       = "ble_connection_error"
	CodeCharacteristicMissing = "ble_characteristic_missing"
	CodeConfigSaveError       = "config_save_error"
	CodeInternalError         = "internal_error"
	CodeUnknownError          = "unknown_error"
)

// NetworkErrorMessage is shown when the backend could not be reached at all.
const NetworkErrorMessage = "Network error: could not reach the device service"

// UnknownErrorMessage is the fallback when nothing better is known.
const UnknownErrorMessage = "An unexpected error occurred"

var errorMessages = map[string]string{
	CodeDeviceNotFound:        "Device not found",
	CodeDeviceDisconnected:    "Device is disconnected",
	CodeDeviceBusy:            "Device is busy with another operation",
	CodeDeviceTimeout:         "Device did not respond in time",
	CodeCommandInvalid:        "Command is not supported by this device",
	CodeCommandTimeout:        "Command timed out before completing",
	CodeCommandFailed:         "Command could not be executed",
	CodeCommandCancelled:      "Command was cancelled",
	CodeValidationError:       "Command arguments failed validation",
	CodeInvalidArguments:      "Command arguments are invalid",
	CodeConnectionError:       "Could not establish a connection to the device",
	CodeCharacteristicMissing: "Device firmware does not support this operation",
	CodeConfigSaveError:       "Saving the device configuration failed",
	CodeInternalError:         "The device service hit an internal error",
	CodeUnknownError:          UnknownErrorMessage,
}

// UserMessage derives the user-facing text for a failed command record: the
// fixed sentence for a recognized error code, then the record's own error or
// result message, then the generic fallback.
func UserMessage(rec *model.CommandRecord) string {
	if rec == nil {
		return UnknownErrorMessage
	}
	if msg, ok := errorMessages[rec.ErrorCode]; ok {
		return msg
	}
	if rec.Error != "" {
		return rec.Error
	}
	if rec.Result != nil {
		if m, ok := rec.Result["message"].(string); ok && m != "" {
			return m
		}
	}
	return UnknownErrorMessage
}

// FailureMessage derives the user-facing text for a failed direct request:
// the backend's detail message when the request got through, the network
// error otherwise.
func FailureMessage(err error) string {
	var reqErr *apiclient.RequestError
	if errors.As(err, &reqErr) {
		if detail := reqErr.Detail; detail != "" {
			return detail
		}
		return UnknownErrorMessage
	}
	return NetworkErrorMessage
}
