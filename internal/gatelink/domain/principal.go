package domain

import "github.com/bwmarrin/snowflake"

type PrincipalKind string

const (
	KindUser   PrincipalKind = "user"
	KindBroker PrincipalKind = "broker"
)

// Principal is the authenticated caller. The only implementations are
// UserPrincipal and BrokerPrincipal; switch on the concrete type.
type Principal interface {
	Kind() PrincipalKind
	// Subject is the authorization subject: the role for staff, "broker" for
	// brokers.
	Subject() string
	ActorID() string

	principal()
}

type UserPrincipal struct {
	UserID   snowflake.ID
	Username string
	Role     Role
}

func (UserPrincipal) Kind() PrincipalKind { return KindUser }
func (p UserPrincipal) Subject() string { return string(p.Role) }
func (p UserPrincipal) ActorID() string { return p.UserID.String() }
func (UserPrincipal) principal() {}

type BrokerPrincipal struct {
	BrokerID snowflake.ID
	Email    string
}

func (BrokerPrincipal) Kind() PrincipalKind { return KindBroker }
func (BrokerPrincipal) Subject() string { return string(KindBroker) }
func (p BrokerPrincipal) ActorID() string { return p.BrokerID.String() }
func (BrokerPrincipal) principal() {}
