//go:build !windows

package shellrun

func shellName() string { return "/bin/sh" }
func shellFlag() string { return "-c" }
