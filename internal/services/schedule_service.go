package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/coastalcannabis/checkout-api/internal/domain"
	"github.com/coastalcannabis/checkout-api/internal/repositories"
)

// DefaultTimezone is the store's business timezone. All slot computation is
// projected into it regardless of the caller's locale.
const DefaultTimezone = "America/Vancouver"

const (
	defaultSlotLength = 60 * time.Minute
	defaultLeadTime   = 30 * time.Minute
)

// ScheduleServiceDeps bundles dependencies required to construct a ScheduleService.
type ScheduleServiceDeps struct {
	Schedules  repositories.ScheduleRepository
	Clock      func() time.Time
	Timezone   string
	SlotLength time.Duration
	LeadTime   time.Duration
}

type scheduleService struct {
	repo     repositories.ScheduleRepository
	clock    func() time.Time
	location *time.Location
	length   int
	lead     int
}

var _ ScheduleService = (*scheduleService)(nil)

// NewScheduleService wires a ScheduleService projecting into the store timezone.
func NewScheduleService(deps ScheduleServiceDeps) (ScheduleService, error) {
	if deps.Schedules == nil {
		return nil, ErrScheduleRepositoryMissing
	}

	tz := strings.TrimSpace(deps.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.New("schedule service: unknown timezone " + tz)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	length := deps.SlotLength
	if length <= 0 {
		length = defaultSlotLength
	}
	lead := deps.LeadTime
	if lead <= 0 {
		lead = defaultLeadTime
	}

	return &scheduleService{
		repo:     deps.Schedules,
		clock:    clock,
		location: location,
		length:   int(length / time.Minute),
		lead:     int(lead / time.Minute),
	}, nil
}

// ResolveBusinessTime projects the instant into the store timezone.
func (s *scheduleService) ResolveBusinessTime(now time.Time) domain.BusinessTime {
	local := now.In(s.location)
	return domain.BusinessTime{
		Weekday: local.Weekday(),
		Date: domain.CivilDate{
			Year:  local.Year(),
			Month: local.Month(),
			Day:   local.Day(),
		},
		Minutes: local.Hour()*60 + local.Minute(),
	}
}

// SlotOrderable reports whether the business time falls inside the slot's
// window on one of its scheduled weekdays.
func (s *scheduleService) SlotOrderable(slot domain.DeliverySlot, at domain.BusinessTime) bool {
	return slot.AppliesOn(at.Weekday) && slot.Window.Contains(at.Minutes)
}

// AvailableSlots computes the delivery windows currently offered for the
// method. When no sub-slot survives today's lead-time filter, tomorrow's
// schedule is offered instead with NextDay set.
func (s *scheduleService) AvailableSlots(ctx context.Context, method domain.DeliveryMethod) (SlotAvailability, error) {
	if s == nil || s.repo == nil {
		return SlotAvailability{}, ErrScheduleRepositoryMissing
	}

	slots, err := s.repo.Slots(ctx, method)
	if err != nil {
		return SlotAvailability{}, err
	}
	exceptions, err := s.repo.Exceptions(ctx, method)
	if err != nil {
		return SlotAvailability{}, err
	}

	at := s.ResolveBusinessTime(s.clock())

	todayWindows := windowsForDate(slots, exceptions, at.Date)
	today := s.partitionWindows(todayWindows, at.Minutes, true)

	asap := false
	for _, window := range todayWindows {
		if window.Contains(at.Minutes) {
			asap = true
			break
		}
	}

	result := SlotAvailability{
		Slots: today,
		ASAP:  asap,
		Date:  at.Date,
	}
	if len(today) == 0 {
		// Tomorrow is never "now", so the lead filter does not apply.
		tomorrow := at.Date.Next()
		windows := windowsForDate(slots, exceptions, tomorrow)
		result.Slots = s.partitionWindows(windows, 0, false)
		result.NextDay = true
		result.Date = tomorrow
	}

	result.Labels = make([]string, 0, len(result.Slots))
	for _, slot := range result.Slots {
		result.Labels = append(result.Labels, slot.Label())
	}
	return result, nil
}

// ValidateDeliveryTime checks a selected slot label against the currently
// offered windows. "ASAP" is accepted only while the store is open.
func (s *scheduleService) ValidateDeliveryTime(ctx context.Context, method domain.DeliveryMethod, label string) error {
	selected := strings.TrimSpace(label)
	if selected == "" {
		return ErrDeliveryTimeRequired
	}

	available, err := s.AvailableSlots(ctx, method)
	if err != nil {
		return err
	}

	if strings.EqualFold(selected, "ASAP") {
		if available.ASAP {
			return nil
		}
		return ErrDeliveryTimeUnavailable
	}
	for _, offered := range available.Labels {
		if strings.EqualFold(offered, selected) {
			return nil
		}
	}
	return ErrDeliveryTimeUnavailable
}

// windowsForDate resolves the open windows for a calendar date. An exact-date
// exception replaces the weekday schedule entirely, including an empty window
// list meaning closed all day.
func windowsForDate(slots []domain.DeliverySlot, exceptions []domain.ScheduleException, date domain.CivilDate) []domain.TimeWindow {
	for _, exception := range exceptions {
		if exception.Date == date {
			return append([]domain.TimeWindow(nil), exception.Windows...)
		}
	}
	weekday := date.Weekday()
	var windows []domain.TimeWindow
	for _, slot := range slots {
		if slot.AppliesOn(weekday) {
			windows = append(windows, slot.Window)
		}
	}
	return windows
}

// partitionWindows cuts each open window into fixed-length sub-slots, extends
// the final sub-slot over a short remainder so the closing half hour is still
// offered, and drops sub-slots starting inside the lead-time horizon.
func (s *scheduleService) partitionWindows(windows []domain.TimeWindow, nowMinutes int, applyLead bool) []domain.TimeWindow {
	var out []domain.TimeWindow
	for _, window := range windows {
		subs := s.partitionWindow(window)
		for _, sub := range subs {
			if applyLead && nowMinutes+s.lead > sub.Start {
				continue
			}
			out = append(out, sub)
		}
	}
	return out
}

func (s *scheduleService) partitionWindow(window domain.TimeWindow) []domain.TimeWindow {
	var subs []domain.TimeWindow
	for start := window.Start; start+s.length <= window.End; start += s.length {
		subs = append(subs, domain.TimeWindow{Start: start, End: start + s.length})
	}
	if len(subs) == 0 {
		return nil
	}
	last := &subs[len(subs)-1]
	if remainder := window.End - last.End; remainder > 0 && remainder <= s.length/2 {
		last.End = window.End
	}
	return subs
}
