package valueobject

import "fmt"

// RootCauseCategory классифицирует первопричину инцидента
type RootCauseCategory string

const (
	RootCauseBuildAgent          RootCauseCategory = "build-agent"
	RootCauseBug                 RootCauseCategory = "bug"
	RootCauseEnvironment         RootCauseCategory = "environment"
	RootCauseFalseAlarm          RootCauseCategory = "false-alarm"
	RootCauseNetwork             RootCauseCategory = "network"
	RootCauseOther               RootCauseCategory = "other"
	RootCauseUnavailableResource RootCauseCategory = "unavailable-resource"
	RootCauseWebsite             RootCauseCategory = "website"
)

// Validate проверяет допустимость значения
func (c RootCauseCategory) Validate() error {
	for _, known := range AllRootCauseCategories() {
		if c == known {
			return nil
		}
	}
	return fmt.Errorf("invalid root cause category %q", string(c))
}

func (c RootCauseCategory) String() string {
	return string(c)
}

// AllRootCauseCategories возвращает список всех допустимых категорий
func AllRootCauseCategories() []RootCauseCategory {
	return []RootCauseCategory{
		RootCauseBuildAgent,
		RootCauseBug,
		RootCauseEnvironment,
		RootCauseFalseAlarm,
		RootCauseNetwork,
		RootCauseOther,
		RootCauseUnavailableResource,
		RootCauseWebsite,
	}
}
