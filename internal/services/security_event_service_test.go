package services_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEventLog(detection bool) (*services.SecurityEventService, *testClock) {
	clock := newTestClock()
	log := services.NewSecurityEventService(detection, discardLogger())
	log.SetClock(clock.Now)
	return log, clock
}

func TestEventLog_SeverityAndIDs(t *testing.T) {
	log, clock := newTestEventLog(true)

	first := log.AddSecurityEvent(models.EventAccountLocked, models.EventData{"identifier": "a"})
	second := log.AddSecurityEvent(models.EventType("SOMETHING_NEW"), nil)

	assert.Equal(t, models.SeverityHigh, first.Severity)
	assert.Equal(t, models.SeverityLow, second.Severity)
	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, clock.Now(), first.Timestamp)
}

func TestEventLog_DataIsCopied(t *testing.T) {
	log, _ := newTestEventLog(true)
	data := models.EventData{"identifier": "a"}

	log.AddSecurityEvent(models.EventCSRFAttempt, data)
	data["identifier"] = "mutated"

	events := log.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Data["identifier"])

	events[0].Data["identifier"] = "mutated again"
	assert.Equal(t, "a", log.Events()[0].Data["identifier"])
}

func TestEventLog_CapKeepsMostRecentInOrder(t *testing.T) {
	log, _ := newTestEventLog(false)

	for i := 0; i < 250; i++ {
		log.AddSecurityEvent(models.EventSessionExpired, models.EventData{"seq": i})
	}

	events := log.Events()
	require.Len(t, events, services.MaxSecurityEvents)
	for i, e := range events {
		assert.Equal(t, 50+i, e.Data["seq"])
	}
}

func TestEventLog_PatternFiresOncePerStreak(t *testing.T) {
	log, _ := newTestEventLog(true)

	for i := 0; i < 4; i++ {
		log.AddSecurityEvent(models.EventCSRFAttempt, nil)
	}
	assert.Empty(t, log.SuspiciousActivity())

	log.AddSecurityEvent(models.EventCSRFAttempt, nil)
	flags := log.SuspiciousActivity()
	require.Len(t, flags, 1)
	assert.Equal(t, models.FlagTypePatternDetected, flags[0].Type)
	assert.Equal(t, models.EventCSRFAttempt, flags[0].Pattern)
	assert.Equal(t, 5, flags[0].Count)
	assert.Equal(t, models.SeverityMedium, flags[0].Severity)
	assert.Equal(t, 1, countType(log.Events(), models.EventSuspiciousActivity))

	log.AddSecurityEvent(models.EventCSRFAttempt, nil)
	assert.Len(t, log.SuspiciousActivity(), 1)
	assert.Equal(t, 1, countType(log.Events(), models.EventSuspiciousActivity))
}

func TestEventLog_PatternFiresAgainAfterWindow(t *testing.T) {
	log, clock := newTestEventLog(true)

	for i := 0; i < 5; i++ {
		log.AddSecurityEvent(models.EventRateLimitExceeded, nil)
	}
	require.Len(t, log.SuspiciousActivity(), 1)

	clock.Advance(services.SuspiciousActivityWindow)
	for i := 0; i < 4; i++ {
		log.AddSecurityEvent(models.EventRateLimitExceeded, nil)
	}
	assert.Len(t, log.SuspiciousActivity(), 1, "old events left the window")

	log.AddSecurityEvent(models.EventRateLimitExceeded, nil)
	assert.Len(t, log.SuspiciousActivity(), 2)
}

func TestEventLog_PatternsAreTrackedPerType(t *testing.T) {
	log, _ := newTestEventLog(true)

	for i := 0; i < 4; i++ {
		log.AddSecurityEvent(models.EventCSRFAttempt, nil)
		log.AddSecurityEvent(models.EventRateLimitExceeded, nil)
	}
	assert.Empty(t, log.SuspiciousActivity())
}

func TestEventLog_DetectionDisabled(t *testing.T) {
	log, _ := newTestEventLog(false)

	for i := 0; i < 10; i++ {
		log.AddSecurityEvent(models.EventCSRFAttempt, nil)
	}
	assert.Empty(t, log.SuspiciousActivity())
	assert.Equal(t, 0, countType(log.Events(), models.EventSuspiciousActivity))

	log.SetDetectionEnabled(true)
	log.AddSecurityEvent(models.EventCSRFAttempt, nil)
	assert.Len(t, log.SuspiciousActivity(), 1)
}

func TestEventLog_SubscribersSeeDerivedEvents(t *testing.T) {
	log, _ := newTestEventLog(true)

	var mu sync.Mutex
	var seen []models.EventType
	log.Subscribe(func(e models.SecurityEvent) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		log.AddSecurityEvent(models.EventSessionExpired, nil)
	}

	require.Len(t, seen, 6)
	assert.Equal(t, models.EventSuspiciousActivity, seen[5])
}

func TestEventLog_SubscriberMayReadLog(t *testing.T) {
	log, _ := newTestEventLog(true)

	var observed int
	log.Subscribe(func(models.SecurityEvent) {
		observed = len(log.Events())
	})

	log.AddSecurityEvent(models.EventAccountUnlocked, nil)
	assert.Equal(t, 1, observed)
}

func TestEventLog_FailedLogins(t *testing.T) {
	log, clock := newTestEventLog(true)

	assert.Equal(t, 1, log.RecordFailedLogin("a", "", "fp"))
	assert.Equal(t, 1, log.RecordFailedLogin("b", "LOCKED_OUT", ""))
	assert.Equal(t, 2, log.RecordFailedLogin("a", "", ""))

	failures := log.FailedLogins()
	require.Len(t, failures, 3)
	assert.Equal(t, models.FailedLoginReasonInvalidCredentials, failures[0].Reason)
	assert.Equal(t, "fp", failures[0].Context)
	assert.Equal(t, "LOCKED_OUT", failures[1].Reason)
	assert.Equal(t, 3, log.RecentFailures())

	clock.Advance(services.RecentFailureWindow)
	assert.Equal(t, 0, log.RecentFailures())
	assert.Equal(t, 1, log.RecordFailedLogin("a", "", ""))
	assert.Len(t, log.FailedLogins(), 3+1)
}

func TestEventLog_FailedLoginCap(t *testing.T) {
	log, _ := newTestEventLog(true)

	for i := 0; i < 120; i++ {
		log.RecordFailedLogin(fmt.Sprintf("user-%d", i), "", "")
	}

	failures := log.FailedLogins()
	require.Len(t, failures, services.MaxFailedLogins)
	assert.Equal(t, "user-20", failures[0].Identifier)
	assert.Equal(t, "user-119", failures[len(failures)-1].Identifier)
}

func TestEventLog_ClearEmptiesEverything(t *testing.T) {
	log, _ := newTestEventLog(true)

	for i := 0; i < 5; i++ {
		log.AddSecurityEvent(models.EventCSRFAttempt, nil)
	}
	log.RecordFailedLogin("a", "", "")

	log.Clear()

	events, failures, flags := log.Counts()
	assert.Zero(t, events)
	assert.Zero(t, failures)
	assert.Zero(t, flags)
}

func TestEventLog_PruneDropsOnlyOldEntries(t *testing.T) {
	log, clock := newTestEventLog(true)

	for i := 0; i < 5; i++ {
		log.AddSecurityEvent(models.EventCSRFAttempt, nil)
	}
	log.RecordFailedLogin("a", "", "")

	clock.Advance(services.EventRetention - time.Minute)
	log.AddSecurityEvent(models.EventAccountLocked, nil)
	assert.Zero(t, log.Prune())

	clock.Advance(time.Minute)
	// 6 events, 1 failure and 1 flag are a day old
	assert.Equal(t, 8, log.Prune())

	events := log.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventAccountLocked, events[0].Type)
	assert.Empty(t, log.FailedLogins())
	assert.Empty(t, log.SuspiciousActivity())
}

func TestEventLog_ClockGoingBackwardsCountsAsRecent(t *testing.T) {
	log, clock := newTestEventLog(true)

	log.RecordFailedLogin("a", "", "")
	clock.Advance(-2 * time.Hour)

	assert.Equal(t, 1, log.RecentFailures())
	assert.Zero(t, log.Prune())
}
