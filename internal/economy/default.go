package economy

// defaultConfig is served until an admin stores the first version.
const defaultConfig = `{
	"version": 0,
	"created_at": "2024-01-01T00:00:00Z",
	"pricing": {"diamond_fuel_rate": 3},
	"machines": {
		"drill": {"purchase_cost": 50, "base_ticks_per_hour": 2, "base_fuel_per_tick": 1, "tank_capacity": 10, "max_level": 10},
		"excavator": {"purchase_cost": 200, "base_ticks_per_hour": 4, "base_fuel_per_tick": 2, "tank_capacity": 40, "max_level": 10},
		"refinery": {"purchase_cost": 800, "base_ticks_per_hour": 6, "base_fuel_per_tick": 3, "tank_capacity": 120, "max_level": 10}
	},
	"rewards": {
		"drop_mode": "expected",
		"minerals": {
			"coal": {"drop_rate": 0.8, "value": 0.5},
			"iron": {"drop_rate": 0.4, "value": 1.5},
			"gold": {"drop_rate": 0.1, "value": 5}
		},
		"diamond_drop_rate": 0.05,
		"diamonds_per_drop": 1
	},
	"diamonds": {"daily_cap_per_user": 10, "excess_diamond_oil_value": 5, "reset_period_hours": 24},
	"progression": {
		"speed_multiplier": 1.15,
		"fuel_burn_multiplier": 1.1,
		"tank_capacity_multiplier": 1.2,
		"upgrade_cost_multiplier": 1.5
	},
	"cashout": {"enabled": true, "minimum_diamonds_required": 10, "cooldown_days": 7},
	"treasury": {"payout_percentage": 0.5},
	"starter": {"fuel": 100}
}`

// Default returns the built-in config. It panics if the literal above is
// invalid, which the package tests guard against.
func Default() *Config {
	cfg, err := Load([]byte(defaultConfig))
	if err != nil {
		panic("economy: invalid default config: " + err.Error())
	}
	return cfg
}
