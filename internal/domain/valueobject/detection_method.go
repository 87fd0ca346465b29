package valueobject

import "fmt"

// DetectionMethod описывает, как был обнаружен инцидент (Value Object)
type DetectionMethod string

const (
	DetectedByCustomer   DetectionMethod = "customer"
	DetectedByMonitoring DetectionMethod = "monitoring"
	DetectedOther        DetectionMethod = "other"
)

// Validate проверяет допустимость значения
func (d DetectionMethod) Validate() error {
	switch d {
	case DetectedByCustomer, DetectedByMonitoring, DetectedOther:
		return nil
	default:
		return fmt.Errorf("invalid detection method %q", string(d))
	}
}

func (d DetectionMethod) String() string {
	return string(d)
}
