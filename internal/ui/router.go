// Package ui renders the terminal screens and routes between them. Screens
// read store snapshots and dispatch intents; they never mutate state directly.
package ui

// Screen identifies one of the client's views.
type Screen string

const (
	ScreenLogin     Screen = "login"
	ScreenRegister  Screen = "register"
	ScreenDashboard Screen = "dashboard"
	ScreenExam      Screen = "exam"
	ScreenResults   Screen = "results"
	ScreenHistory   Screen = "history"
)

// Resolve applies the route guard to a navigation target and returns the
// screen that may actually render. The guard holds for every render:
//   - protected screens require a token; otherwise login
//   - login/register redirect to the dashboard when already authenticated
//   - the exam screen requires an active session, results a populated result
func Resolve(target Screen, authed, hasSession, hasResult bool) Screen {
	switch target {
	case ScreenLogin, ScreenRegister:
		if authed {
			return ScreenDashboard
		}
		return target
	case ScreenExam:
		if !authed {
			return ScreenLogin
		}
		if !hasSession {
			return ScreenDashboard
		}
		return target
	case ScreenResults:
		if !authed {
			return ScreenLogin
		}
		if !hasResult {
			return ScreenDashboard
		}
		return target
	case ScreenDashboard, ScreenHistory:
		if !authed {
			return ScreenLogin
		}
		return target
	default:
		if !authed {
			return ScreenLogin
		}
		return ScreenDashboard
	}
}
