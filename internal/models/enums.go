package models

// ComputerClass — тип компьютера, за которым стоит очередь.
type ComputerClass string

const (
	ClassAny    ComputerClass = "any"
	ClassTop    ComputerClass = "top"
	ClassBottom ComputerClass = "bottom"
)

// ComputerClasses возвращает все разделы очереди.
func ComputerClasses() []ComputerClass {
	return []ComputerClass{ClassAny, ClassTop, ClassBottom}
}

func (c ComputerClass) Valid() bool {
	switch c {
	case ClassAny, ClassTop, ClassBottom:
		return true
	}
	return false
}

// Physical сообщает, является ли класс реальным залом (top или bottom).
func (c ComputerClass) Physical() bool {
	return c == ClassTop || c == ClassBottom
}

// Status — состояние записи в очереди.
type Status string

const (
	StatusWaiting       Status = "waiting"
	StatusNotified      Status = "notified"
	StatusRemovedLogin  Status = "removed_login"
	StatusRemovedManual Status = "removed_manual"
	StatusExpired       Status = "expired"
)

// ActiveStatuses — статусы, при которых запись занимает место в очереди.
func ActiveStatuses() []Status {
	return []Status{StatusWaiting, StatusNotified}
}

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusNotified, StatusRemovedLogin, StatusRemovedManual, StatusExpired:
		return true
	}
	return false
}

func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusNotified
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s Status) Terminal() bool {
	return s == StatusRemovedLogin || s == StatusRemovedManual || s == StatusExpired
}

// CanTransition проверяет допустимость перехода между статусами.
func (s Status) CanTransition(to Status) bool {
	if !to.Valid() || s.Terminal() || s == to {
		return false
	}
	switch s {
	case StatusWaiting:
		return to == StatusNotified || to.Terminal()
	case StatusNotified:
		return to.Terminal()
	}
	return false
}
