package identity

import (
	"net/http"

	"github.com/stretchr/testify/mock"
	"github.com/wtxsocial/chatcore/internal/types"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) PrincipalFromRequest(r *http.Request) (types.Principal, error) {
	args := m.Called(r)
	return args.Get(0).(types.Principal), args.Error(1)
}
