package models

// All lists every table owned by the service, in dependency order.
func All() []any {
	return []any{
		&Member{},
		&Dependent{},
		&Membership{},
		&Charge{},
		&ChargeDependent{},
	}
}
