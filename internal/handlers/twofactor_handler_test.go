package handlers

import (
	"net/http"
	"testing"

	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func twoFactorRouter(svc *MockTwoFactorService) http.Handler {
	h := NewTwoFactorHandler(svc)
	router := newTestRouter()
	router.POST("/api/2fa/setup", h.Setup)
	router.POST("/api/2fa/enable", h.Enable)
	router.POST("/api/2fa/verify", h.Verify)
	router.POST("/api/2fa/disable", h.Disable)
	router.GET("/api/2fa/status", h.Status)
	return router
}

func TestTwoFactorHandler_Setup(t *testing.T) {
	svc := new(MockTwoFactorService)
	svc.On("Setup", mock.Anything, testUserID).Return(&models.TwoFactorSetupResponse{
		Secret:     "JBSWY3DPEHPK3PXP",
		OTPAuthURL: "otpauth://totp/WhatsApp%20Panel:user@example.com?secret=JBSWY3DPEHPK3PXP",
	}, nil)

	w := doRequest(t, twoFactorRouter(svc), http.MethodPost, "/api/2fa/setup", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", body["secret"])
	assert.Contains(t, body["otpauth_url"], "otpauth://totp/")
	svc.AssertExpectations(t)
}

func TestTwoFactorHandler_Enable(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		mockSetup      func(*MockTwoFactorService)
		expectedStatus int
		checkResponse  func(*testing.T, map[string]interface{})
	}{
		{
			name: "success returns recovery codes",
			body: map[string]string{"code": "123456"},
			mockSetup: func(m *MockTwoFactorService) {
				m.On("Enable", mock.Anything, testUserID, "123456").Return([]string{"aaaa-bbbb", "cccc-dddd"}, nil)
			},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, true, body["enabled"])
				assert.Len(t, body["recovery_codes"], 2)
			},
		},
		{
			name:           "missing code",
			body:           map[string]string{},
			mockSetup:      func(m *MockTwoFactorService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "wrong code",
			body: map[string]string{"code": "000000"},
			mockSetup: func(m *MockTwoFactorService) {
				m.On("Enable", mock.Anything, testUserID, "000000").Return(nil, services.ErrInvalidTOTP)
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "setup not started",
			body: map[string]string{"code": "123456"},
			mockSetup: func(m *MockTwoFactorService) {
				m.On("Enable", mock.Anything, testUserID, "123456").Return(nil, services.ErrTwoFactorNotSetup)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "already enabled",
			body: map[string]string{"code": "123456"},
			mockSetup: func(m *MockTwoFactorService) {
				m.On("Enable", mock.Anything, testUserID, "123456").Return(nil, services.ErrTwoFactorAlreadyEnabled)
			},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockTwoFactorService)
			tt.mockSetup(svc)

			w := doRequest(t, twoFactorRouter(svc), http.MethodPost, "/api/2fa/enable", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.checkResponse != nil {
				tt.checkResponse(t, decodeBody(t, w))
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestTwoFactorHandler_VerifyAndDisable(t *testing.T) {
	svc := new(MockTwoFactorService)
	svc.On("Verify", mock.Anything, testUserID, "111111").Return(nil)
	svc.On("Verify", mock.Anything, testUserID, "222222").Return(services.ErrInvalidTOTP)
	svc.On("Disable", mock.Anything, testUserID, "111111").Return(nil)
	router := twoFactorRouter(svc)

	w := doRequest(t, router, http.MethodPost, "/api/2fa/verify", map[string]string{"code": "111111"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["verified"])

	w = doRequest(t, router, http.MethodPost, "/api/2fa/verify", map[string]string{"code": "222222"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, router, http.MethodPost, "/api/2fa/disable", map[string]string{"code": "111111"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["enabled"])

	svc.AssertExpectations(t)
}

func TestTwoFactorHandler_Status(t *testing.T) {
	svc := new(MockTwoFactorService)
	svc.On("Status", mock.Anything, testUserID).Return(&models.TwoFactorStatus{
		Enabled:                true,
		RecoveryCodesRemaining: 8,
	}, nil)

	w := doRequest(t, twoFactorRouter(svc), http.MethodGet, "/api/2fa/status", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, float64(8), body["recovery_codes_remaining"])
}
