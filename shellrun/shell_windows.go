//go:build windows

package shellrun

func shellName() string { return "cmd" }
func shellFlag() string { return "/C" }
