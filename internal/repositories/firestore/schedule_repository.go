package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
	pfirestore "github.com/coastalcannabis/checkout-api/internal/platform/firestore"
	"github.com/coastalcannabis/checkout-api/internal/repositories"
)

const scheduleCollection = "deliverySchedules"

// Store hours: Sun-Thu 9:00-20:30, Fri-Sat 9:00-21:30.
var defaultSlots = []domain.DeliverySlot{
	{
		Days:   []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday},
		Window: domain.TimeWindow{Start: 9 * 60, End: 20*60 + 30},
	},
	{
		Days:   []time.Weekday{time.Friday, time.Saturday},
		Window: domain.TimeWindow{Start: 9 * 60, End: 21*60 + 30},
	},
}

// ScheduleRepository reads the delivery slot configuration from Firestore,
// falling back to the store's regular hours when no document exists.
type ScheduleRepository struct {
	base *pfirestore.BaseRepository[scheduleDocument]
}

// NewScheduleRepository constructs a Firestore-backed schedule repository.
func NewScheduleRepository(provider *pfirestore.Provider) (*ScheduleRepository, error) {
	if provider == nil {
		return nil, errors.New("schedule repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[scheduleDocument](provider, scheduleCollection, nil, nil)
	return &ScheduleRepository{base: base}, nil
}

// Slots returns the recurring weekday windows for the delivery method.
func (r *ScheduleRepository) Slots(ctx context.Context, method domain.DeliveryMethod) ([]domain.DeliverySlot, error) {
	doc, err := r.load(ctx, method)
	if err != nil {
		return nil, err
	}
	if doc == nil || len(doc.Slots) == 0 {
		return append([]domain.DeliverySlot(nil), defaultSlots...), nil
	}

	slots := make([]domain.DeliverySlot, 0, len(doc.Slots))
	for _, slot := range doc.Slots {
		days := make([]time.Weekday, 0, len(slot.Days))
		for _, day := range slot.Days {
			days = append(days, time.Weekday(day))
		}
		slots = append(slots, domain.DeliverySlot{
			Days:   days,
			Window: domain.TimeWindow{Start: slot.StartMinute, End: slot.EndMinute},
		})
	}
	return slots, nil
}

// Exceptions returns the exact-date overrides for the delivery method. An
// entry with no windows marks the store closed for that date.
func (r *ScheduleRepository) Exceptions(ctx context.Context, method domain.DeliveryMethod) ([]domain.ScheduleException, error) {
	doc, err := r.load(ctx, method)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	exceptions := make([]domain.ScheduleException, 0, len(doc.Exceptions))
	for _, exc := range doc.Exceptions {
		windows := make([]domain.TimeWindow, 0, len(exc.Windows))
		for _, w := range exc.Windows {
			windows = append(windows, domain.TimeWindow{Start: w.StartMinute, End: w.EndMinute})
		}
		exceptions = append(exceptions, domain.ScheduleException{
			Date: domain.CivilDate{
				Year:  exc.Year,
				Month: time.Month(exc.Month),
				Day:   exc.Day,
			},
			Windows: windows,
		})
	}
	return exceptions, nil
}

func (r *ScheduleRepository) load(ctx context.Context, method domain.DeliveryMethod) (*scheduleDocument, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("schedule repository not initialised")
	}

	doc, err := r.base.Get(ctx, string(method))
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, nil
		}
		return nil, err
	}
	data := doc.Data
	return &data, nil
}

type scheduleDocument struct {
	Slots      []slotDocument      `firestore:"slots"`
	Exceptions []exceptionDocument `firestore:"exceptions"`
}

type slotDocument struct {
	Days        []int `firestore:"days"`
	StartMinute int   `firestore:"startMinute"`
	EndMinute   int   `firestore:"endMinute"`
}

type exceptionDocument struct {
	Year    int              `firestore:"year"`
	Month   int              `firestore:"month"`
	Day     int              `firestore:"day"`
	Windows []windowDocument `firestore:"windows"`
}

type windowDocument struct {
	StartMinute int `firestore:"startMinute"`
	EndMinute   int `firestore:"endMinute"`
}

var _ repositories.ScheduleRepository = (*ScheduleRepository)(nil)
