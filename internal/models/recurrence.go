package models

// RecurrenceRule names the calendar pattern a template repeats on
type RecurrenceRule string

const (
	RuleDailyWeekdays     RecurrenceRule = "daily_weekdays"
	RuleWeekly            RecurrenceRule = "weekly"
	RuleBiweekly          RecurrenceRule = "biweekly"
	RuleMonthly           RecurrenceRule = "monthly"
	RuleMonthlyNthWeekday RecurrenceRule = "monthly_nth_weekday"
	RuleQuarterly         RecurrenceRule = "quarterly"
	RuleYearly            RecurrenceRule = "yearly"
	RuleSpecificTime      RecurrenceRule = "specific_time"
	RuleCustom            RecurrenceRule = "custom"
)

// RecurrenceRules lists every rule a template may be created with
var RecurrenceRules = []RecurrenceRule{
	RuleDailyWeekdays,
	RuleWeekly,
	RuleBiweekly,
	RuleMonthly,
	RuleMonthlyNthWeekday,
	RuleQuarterly,
	RuleYearly,
	RuleSpecificTime,
	RuleCustom,
}

// IsKnown reports whether r is one of RecurrenceRules
func (r RecurrenceRule) IsKnown() bool {
	for _, known := range RecurrenceRules {
		if r == known {
			return true
		}
	}
	return false
}
