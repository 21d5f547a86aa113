package validations

import (
	"context"
	"time"

	pkgError "github.com/castrel/postflow/pkg/error"
	"github.com/castrel/postflow/pkg/recurrence"
	"github.com/castrel/postflow/scheduling/domain"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// timezoneRule accepts empty (defaulted to UTC upstream) or a loadable IANA name.
var timezoneRule = validation.By(func(value interface{}) error {
	name, _ := value.(string)
	if name == "" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return validation.NewError("validation_timezone", "must be a valid IANA timezone name")
	}
	return nil
})

func ValidateUpdateSchedule(ctx context.Context, request domain.UpdateScheduleRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.UserID, validation.Required),
		validation.Field(&request.Frequency, validation.Required,
			validation.In(
				string(recurrence.FrequencyDaily),
				string(recurrence.FrequencyWeekly),
				string(recurrence.FrequencyMonthly),
			)),
		validation.Field(&request.TimeOfDay, validation.Required),
		// NotNil, not Required: 0 is Sunday, a perfectly valid day.
		validation.Field(&request.DayOfWeek,
			validation.When(request.Frequency == string(recurrence.FrequencyWeekly),
				validation.NotNil.Error("is required for weekly schedules")),
			validation.When(request.DayOfWeek != nil, validation.Min(0), validation.Max(6))),
		validation.Field(&request.DayOfMonth,
			validation.When(request.Frequency == string(recurrence.FrequencyMonthly),
				validation.NotNil.Error("is required for monthly schedules")),
			validation.When(request.DayOfMonth != nil, validation.Min(1), validation.Max(31))),
		validation.Field(&request.Timezone, timezoneRule),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateCreatePost(ctx context.Context, request domain.CreatePostRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.UserID, validation.Required),
		validation.Field(&request.ContentID, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
