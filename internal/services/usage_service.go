package services

import (
	"errors"
	"strings"
	"time"

	"github.com/ciddy0/co2ounter/internal/logger"
	"github.com/ciddy0/co2ounter/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidModel = errors.New("invalid model")
	ErrInvalidCount = errors.New("token and co2 values must be non-negative")
)

// How long an idempotency key is remembered.
const processedEventTTL = 48 * time.Hour

var validModels = map[string]bool{
	"chatgpt": true,
	"claude":  true,
	"gemini":  true,
}

// ValidModel reports whether the model tag is one the aggregation API
// accepts.
func ValidModel(model string) bool {
	return validModels[model]
}

// UsageService owns every mutation of the durable counters. All counter
// writes are atomic increments inside a single transaction; counters are
// never read, modified, and written back as scalars.
type UsageService struct {
	db      *gorm.DB
	retries int
	now     func() time.Time
}

func NewUsageService(db *gorm.DB, retries int) *UsageService {
	if retries < 1 {
		retries = 1
	}
	return &UsageService{
		db:      db,
		retries: retries,
		now:     time.Now,
	}
}

type ModelSnapshot struct {
	PromptCount      int64   `json:"prompts"`
	OutputTokenCount int64   `json:"outputTokens"`
	CO2Grams         float64 `json:"co2"`
}

type UserSnapshot struct {
	Identity          string                   `json:"identity"`
	DisplayName       string                   `json:"displayName"`
	PromptTotal       int64                    `json:"promptTotal"`
	OutputTokenTotal  int64                    `json:"outputTokens"`
	CO2TotalGrams     float64                  `json:"co2Total"`
	DailyLimitPrompts int64                    `json:"dailyLimitPrompts"`
	DailyLimitCO2     float64                  `json:"dailyLimitCo2"`
	ModelTotals       map[string]ModelSnapshot `json:"modelTotals"`
}

type DaySnapshot struct {
	Date             string                   `json:"date"`
	PromptCount      int64                    `json:"promptCount"`
	OutputTokenCount int64                    `json:"outputTokens"`
	CO2Grams         float64                  `json:"co2Total"`
	ModelBreakdown   map[string]ModelSnapshot `json:"modelBreakdown"`
}

type Exceeded struct {
	Prompts bool `json:"prompts"`
	CO2     bool `json:"co2"`
}

type RecordResult struct {
	Exceeded Exceeded
	User     UserSnapshot
	Today    DaySnapshot
}

type LeaderboardEntry struct {
	Identity      string  `json:"identity"`
	DisplayName   string  `json:"displayName"`
	PromptTotal   int64   `json:"promptTotal"`
	CO2TotalGrams float64 `json:"co2Total"`
}

type DayUsage struct {
	Date             string  `json:"date"`
	PromptCount      int64   `json:"promptCount"`
	OutputTokenCount int64   `json:"outputTokens"`
	CO2Grams         float64 `json:"co2Grams"`
}

// increment is one event folded into the counters.
type increment struct {
	prompts      int64
	outputTokens int64
	co2Grams     float64
}

// RecordPrompt folds one prompt-sent event into the caller's counters and
// reports whether today's limits are reached.
func (s *UsageService) RecordPrompt(identity, model string, inputTokens int, co2Grams float64, eventID string) (*RecordResult, error) {
	if !ValidModel(model) {
		return nil, ErrInvalidModel
	}
	if inputTokens < 0 || co2Grams < 0 {
		return nil, ErrInvalidCount
	}

	inc := increment{prompts: 1, co2Grams: co2Grams}
	return s.record(identity, model, inc, eventID)
}

// RecordResponse folds one response-received event into the caller's
// counters.
func (s *UsageService) RecordResponse(identity, model string, outputTokens int, co2Grams float64, eventID string) (*RecordResult, error) {
	if !ValidModel(model) {
		return nil, ErrInvalidModel
	}
	if outputTokens < 0 || co2Grams < 0 {
		return nil, ErrInvalidCount
	}

	inc := increment{outputTokens: int64(outputTokens), co2Grams: co2Grams}
	return s.record(identity, model, inc, eventID)
}

func (s *UsageService) record(identity, model string, inc increment, eventID string) (*RecordResult, error) {
	// "Today" is the server's UTC date at the instant the transaction runs.
	date := s.today()

	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		err = s.applyIncrement(identity, model, date, inc, eventID)
		if err == nil {
			break
		}
		if !isTransient(err) {
			return nil, err
		}
		logger.Log.WithField("attempt", attempt+1).
			Warn("Retrying usage transaction: ", err)
	}
	if err != nil {
		return nil, err
	}

	// Re-read after commit to evaluate limits against the updated state.
	user, today, err := s.snapshots(identity, date)
	if err != nil {
		return nil, err
	}

	return &RecordResult{
		Exceeded: exceeded(user, today),
		User:     *user,
		Today:    *today,
	}, nil
}

// applyIncrement runs the two-phase transaction: all reads first, then all
// writes as merge-or-create atomic increments. The phases are kept separate
// even though SQL does not require it; the discipline rules out
// write-after-read hazards regardless of backing store.
func (s *UsageService) applyIncrement(identity, model, date string, inc increment, eventID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Phase 1: reads.
		userMissing := false
		var user models.User
		if err := tx.Where("identity = ?", identity).First(&user).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			userMissing = true
		}

		if eventID != "" {
			var seen models.ProcessedEvent
			err := tx.Where("identity = ? AND event_id = ? AND expires_at > ?",
				identity, eventID, s.now()).First(&seen).Error
			if err == nil {
				// Already applied: skip the writes, keep the transaction
				// successful so the caller gets the current snapshot.
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		// Phase 2: writes.
		if userMissing {
			// DoNothing absorbs the race where two first events for the
			// same identity both stage the creation.
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.User{Identity: identity}).Error
			if err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"prompt_total":       gorm.Expr("prompt_total + ?", inc.prompts),
			"output_token_total": gorm.Expr("output_token_total + ?", inc.outputTokens),
			"co2_total_grams":    gorm.Expr("co2_total_grams + ?", inc.co2Grams),
			"updated_at":         s.now(),
		}
		if err := tx.Model(&models.User{}).Where("identity = ?", identity).Updates(updates).Error; err != nil {
			return err
		}

		if err := upsertCounters(tx, &models.ModelTotal{
			Identity:         identity,
			Model:            model,
			PromptCount:      inc.prompts,
			OutputTokenCount: inc.outputTokens,
			CO2Grams:         inc.co2Grams,
		}, []string{"identity", "model"}, inc); err != nil {
			return err
		}

		if err := upsertCounters(tx, &models.DailyUsage{
			Identity:         identity,
			Date:             date,
			PromptCount:      inc.prompts,
			OutputTokenCount: inc.outputTokens,
			CO2Grams:         inc.co2Grams,
		}, []string{"identity", "date"}, inc); err != nil {
			return err
		}

		if err := upsertCounters(tx, &models.DailyModelUsage{
			Identity:         identity,
			Date:             date,
			Model:            model,
			PromptCount:      inc.prompts,
			OutputTokenCount: inc.outputTokens,
			CO2Grams:         inc.co2Grams,
		}, []string{"identity", "date", "model"}, inc); err != nil {
			return err
		}

		if eventID != "" {
			seen := models.ProcessedEvent{
				Identity:  identity,
				EventID:   eventID,
				ExpiresAt: s.now().Add(processedEventTTL),
			}
			// An expired row with the same key may still exist; refresh it
			// instead of tripping the unique index.
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "identity"}, {Name: "event_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"expires_at": seen.ExpiresAt}),
			}).Create(&seen).Error
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// upsertCounters inserts the row with the increment as its initial absolute
// values, or adds the increment to the existing row's counters atomically.
func upsertCounters(tx *gorm.DB, row interface{}, conflictCols []string, inc increment) error {
	cols := make([]clause.Column, len(conflictCols))
	for i, c := range conflictCols {
		cols[i] = clause.Column{Name: c}
	}

	return tx.Clauses(clause.OnConflict{
		Columns: cols,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"prompt_count":       gorm.Expr("prompt_count + ?", inc.prompts),
			"output_token_count": gorm.Expr("output_token_count + ?", inc.outputTokens),
			"co2_grams":          gorm.Expr("co2_grams + ?", inc.co2Grams),
		}),
	}).Create(row).Error
}

// GetStats returns the caller's lifetime and today's counters with the
// current limit evaluation.
func (s *UsageService) GetStats(identity string) (*RecordResult, error) {
	user, today, err := s.snapshots(identity, s.today())
	if err != nil {
		return nil, err
	}
	return &RecordResult{
		Exceeded: exceeded(user, today),
		User:     *user,
		Today:    *today,
	}, nil
}

// GetLeaderboard returns up to limit users ordered by lifetime prompt count.
func (s *UsageService) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	var users []models.User
	err := s.db.Order("prompt_total DESC").Limit(limit).Find(&users).Error
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, LeaderboardEntry{
			Identity:      u.Identity,
			DisplayName:   u.DisplayName,
			PromptTotal:   u.PromptTotal,
			CO2TotalGrams: u.CO2TotalGrams,
		})
	}
	return entries, nil
}

// GetHistory returns the last days of usage, oldest first, with missing days
// zero-filled.
func (s *UsageService) GetHistory(identity string, days int) ([]DayUsage, error) {
	if days <= 0 {
		days = 7
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -(days - 1))

	var rows []models.DailyUsage
	err := s.db.Where("identity = ? AND date >= ? AND date <= ?",
		identity, start.Format("2006-01-02"), end.Format("2006-01-02")).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]models.DailyUsage, len(rows))
	for _, row := range rows {
		byDate[row.Date] = row
	}

	out := make([]DayUsage, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dateStr := d.Format("2006-01-02")
		row := byDate[dateStr]
		out = append(out, DayUsage{
			Date:             dateStr,
			PromptCount:      row.PromptCount,
			OutputTokenCount: row.OutputTokenCount,
			CO2Grams:         row.CO2Grams,
		})
	}
	return out, nil
}

// GetYearHeatmap returns per-day prompt counts for the trailing year, only
// for days with activity.
func (s *UsageService) GetYearHeatmap(identity string) ([]DayUsage, error) {
	start := s.now().UTC().AddDate(-1, 0, 0)

	var rows []models.DailyUsage
	err := s.db.Where("identity = ? AND date >= ?", identity, start.Format("2006-01-02")).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]DayUsage, 0, len(rows))
	for _, row := range rows {
		out = append(out, DayUsage{
			Date:             row.Date,
			PromptCount:      row.PromptCount,
			OutputTokenCount: row.OutputTokenCount,
			CO2Grams:         row.CO2Grams,
		})
	}
	return out, nil
}

// Register pre-creates the user record with defaults. Records are otherwise
// created lazily on first event, so this only fills in the display name.
// Empty incoming values never clear stored ones: token exchange passes
// whatever the identity provider asserted, which may be nothing.
func (s *UsageService) Register(identity, displayName, email string) error {
	user := models.User{
		Identity:    identity,
		DisplayName: displayName,
		Email:       email,
	}

	assignments := map[string]interface{}{}
	if displayName != "" {
		assignments["display_name"] = displayName
	}
	if email != "" {
		assignments["email"] = email
	}

	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "identity"}}}
	if len(assignments) == 0 {
		onConflict.DoNothing = true
	} else {
		onConflict.DoUpdates = clause.Assignments(assignments)
	}
	return s.db.Clauses(onConflict).Create(&user).Error
}

// UpdateLimits sets the daily thresholds; zero disables a limit.
func (s *UsageService) UpdateLimits(identity string, dailyPrompts int64, dailyCO2 float64) error {
	if dailyPrompts < 0 || dailyCO2 < 0 {
		return ErrInvalidCount
	}
	return s.db.Model(&models.User{}).Where("identity = ?", identity).
		Updates(map[string]interface{}{
			"daily_limit_prompts": dailyPrompts,
			"daily_limit_co2":     dailyCO2,
		}).Error
}

func (s *UsageService) today() string {
	return s.now().UTC().Format("2006-01-02")
}

func (s *UsageService) snapshots(identity, date string) (*UserSnapshot, *DaySnapshot, error) {
	var user models.User
	if err := s.db.Where("identity = ?", identity).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, err
		}
		// Unknown user reads as all-zero, matching lazy creation.
		user = models.User{Identity: identity}
	}

	snapshot := &UserSnapshot{
		Identity:          user.Identity,
		DisplayName:       user.DisplayName,
		PromptTotal:       user.PromptTotal,
		OutputTokenTotal:  user.OutputTokenTotal,
		CO2TotalGrams:     user.CO2TotalGrams,
		DailyLimitPrompts: user.DailyLimitPrompts,
		DailyLimitCO2:     user.DailyLimitCO2,
		ModelTotals:       map[string]ModelSnapshot{},
	}

	var totals []models.ModelTotal
	if err := s.db.Where("identity = ?", identity).Find(&totals).Error; err != nil {
		return nil, nil, err
	}
	for _, t := range totals {
		snapshot.ModelTotals[t.Model] = ModelSnapshot{
			PromptCount:      t.PromptCount,
			OutputTokenCount: t.OutputTokenCount,
			CO2Grams:         t.CO2Grams,
		}
	}

	today := &DaySnapshot{
		Date:           date,
		ModelBreakdown: map[string]ModelSnapshot{},
	}

	var day models.DailyUsage
	err := s.db.Where("identity = ? AND date = ?", identity, date).First(&day).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}
	if err == nil {
		today.PromptCount = day.PromptCount
		today.OutputTokenCount = day.OutputTokenCount
		today.CO2Grams = day.CO2Grams
	}

	var dayModels []models.DailyModelUsage
	if err := s.db.Where("identity = ? AND date = ?", identity, date).Find(&dayModels).Error; err != nil {
		return nil, nil, err
	}
	for _, m := range dayModels {
		today.ModelBreakdown[m.Model] = ModelSnapshot{
			PromptCount:      m.PromptCount,
			OutputTokenCount: m.OutputTokenCount,
			CO2Grams:         m.CO2Grams,
		}
	}

	return snapshot, today, nil
}

// exceeded evaluates the daily thresholds; a limit of zero means unlimited.
func exceeded(user *UserSnapshot, today *DaySnapshot) Exceeded {
	return Exceeded{
		Prompts: user.DailyLimitPrompts > 0 && today.PromptCount >= user.DailyLimitPrompts,
		CO2:     user.DailyLimitCO2 > 0 && today.CO2Grams >= user.DailyLimitCO2,
	}
}

// isTransient recognizes contention errors worth retrying: MySQL deadlock
// and lock-wait timeout, and SQLite busy locks in tests.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Deadlock found") ||
		strings.Contains(msg, "Lock wait timeout") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
