package apiclient

import "strings"

// Auth endpoint paths relative to the API base.
const (
	PathRegister       = "/auth/register"
	PathResendOTP      = "/auth/resend-otp"
	PathVerifyOTP      = "/auth/verify-otp"
	PathAdminLogin     = "/auth/admin/login"
	PathLogin          = "/auth/login"
	PathResendLoginOTP = "/auth/resend-login-otp"
	PathVerifyLoginOTP = "/auth/verify-login-otp"
	PathMe             = "/auth/me"
	PathForgot         = "/auth/forgot-password"
	PathForgotVerify   = "/auth/forgot-password/verify"
	PathForgotReset    = "/auth/forgot-password/reset"
)

type endpoint struct {
	public bool // no credential needed; 401 is an application failure, not expiry
	otp    bool // 400/401 may mean a wrong or expired OTP
}

var endpoints = map[string]endpoint{
	PathRegister:       {public: true},
	PathResendOTP:      {public: true},
	PathVerifyOTP:      {public: true, otp: true},
	PathAdminLogin:     {public: true},
	PathLogin:          {public: true},
	PathResendLoginOTP: {public: true},
	PathVerifyLoginOTP: {public: true, otp: true},
	PathForgot:         {public: true},
	PathForgotVerify:   {public: true, otp: true},
	PathForgotReset:    {public: true},
}

func lookup(path string) endpoint {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return endpoints[strings.TrimRight(path, "/")]
}

// IsPublic reports whether path is reachable without a credential.
func IsPublic(path string) bool { return lookup(path).public }
