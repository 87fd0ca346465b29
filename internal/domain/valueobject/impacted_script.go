package valueobject

import "fmt"

// ImpactedScript указывает, какой вариант install-скрипта затронут
type ImpactedScript string

const (
	ImpactedPS1     ImpactedScript = "ps1"
	ImpactedSH      ImpactedScript = "sh"
	ImpactedBoth    ImpactedScript = "both"
	ImpactedNeither ImpactedScript = "neither"
)

// Validate проверяет допустимость значения
func (s ImpactedScript) Validate() error {
	switch s {
	case ImpactedPS1, ImpactedSH, ImpactedBoth, ImpactedNeither:
		return nil
	default:
		return fmt.Errorf("invalid impacted script %q", string(s))
	}
}

func (s ImpactedScript) String() string {
	return string(s)
}
