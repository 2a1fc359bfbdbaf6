package entity

// FlightPhase — состояние автомата управления полётом
type FlightPhase string

const (
	PhaseInit     FlightPhase = "INIT"     // соединение ещё не установлено
	PhaseArming   FlightPhase = "ARMING"   // ожидание готовности и взведения
	PhaseTakeoff  FlightPhase = "TAKEOFF"  // набор высоты
	PhaseTracking FlightPhase = "TRACKING" // ведение маяка
	PhaseHold     FlightPhase = "HOLD"     // зависание: маяк потерян или устарел
	PhaseLanding  FlightPhase = "LANDING"  // посадка, конечное состояние
	PhaseFailed   FlightPhase = "FAILED"   // ошибка ожидания телеметрии
)

// Airborne сообщает, может ли аппарат находиться в воздухе в этой фазе.
func (p FlightPhase) Airborne() bool {
	return p == PhaseTakeoff || p == PhaseTracking || p == PhaseHold
}

// Terminal сообщает, что из фазы нет обычных переходов.
func (p FlightPhase) Terminal() bool {
	return p == PhaseLanding || p == PhaseFailed
}

// ControlCommand — команда скорости в связанной системе координат (NED, vz вниз).
type ControlCommand struct {
	VX float64 `json:"vx"` // вперёд
	VY float64 `json:"vy"` // вправо
	VZ float64 `json:"vz"` // вниз
}

// PhaseChange описывает один переход автомата.
type PhaseChange struct {
	From   FlightPhase
	To     FlightPhase
	Reason string
}
