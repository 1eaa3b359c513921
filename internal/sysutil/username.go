package sysutil

import "os/user"

// Username 当前用户名，取不到时回落为 unknown
func Username() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "unknown"
	}
	return u.Username
}
