package probe

import (
	"context"

	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/api"
	"github.com/tinyhis/regops/internal/identity"
	"github.com/tinyhis/regops/internal/logging"
)

const (
	basePatients = 20
	maxPatients  = 200
	headroom     = 5
)

// User is a provisioned patient able to book.
type User struct {
	identity.Patient
	ID    int64
	Token string
}

// PatientCount returns override when positive, else enough users to exceed
// the remaining quota, capped to keep load reasonable.
func PatientCount(override, quotaLeft int) int {
	n := override
	if n <= 0 {
		n = max(basePatients, quotaLeft+headroom)
	}
	return min(n, maxPatients)
}

// Provision registers and logs in n synthetic patients. Registration may
// fail because the account already exists, so login is always tried; users
// that cannot log in are dropped.
func (p *Prober) Provision(ctx context.Context, n int) []User {
	users := make([]User, 0, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		if u, ok := p.provisionOne(ctx, identity.Synthetic(p.opts.PhonePrefix, i)); ok {
			users = append(users, u)
		}
	}
	return users
}

func (p *Prober) provisionOne(ctx context.Context, pt identity.Patient) (User, bool) {
	log := p.logger.With(logging.Phone(pt.Phone))

	var registeredID int64
	reg, err := p.client.PatientRegister(ctx, api.PatientRegisterRequest{Name: pt.Name, Phone: pt.Phone, Password: pt.Password})
	switch {
	case err != nil:
		log.Warn("register failed, trying login", zap.Error(err))
	case !reg.OK():
		log.Debug("register refused, trying login", zap.Error(reg.Err()))
	default:
		registeredID = reg.Data.PatientID
	}

	login, err := p.client.PatientLogin(ctx, pt.Phone, pt.Password)
	if err != nil {
		log.Warn("login failed, dropping user", zap.Error(err))
		return User{}, false
	}
	if err := login.Err(); err != nil {
		log.Warn("login failed, dropping user", zap.Error(err))
		return User{}, false
	}
	if login.Data.Token == "" {
		log.Warn("login returned no token, dropping user")
		return User{}, false
	}

	id := login.Data.UserID
	if id == 0 {
		id = registeredID
	}
	if id == 0 {
		log.Warn("no patient id for user, dropping")
		return User{}, false
	}
	return User{Patient: pt, ID: id, Token: login.Data.Token}, true
}
