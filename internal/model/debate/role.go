package debate

// Role tags a participant inside one room.
type Role string

const (
	RoleDebaterA  Role = "debater_A"
	RoleDebaterB  Role = "debater_B"
	RoleSpectator Role = "spectator"
)

// IsDebater reports whether the role holds one of the two debater slots.
func (r Role) IsDebater() bool {
	return r == RoleDebaterA || r == RoleDebaterB
}
