// Package subprocess runs external tools in their own process group.
//
// LibreOffice's soffice is a launcher that forks soffice.bin, so killing the
// direct child leaves the real worker running and holding the output pipes.
// Commands prepared with Configure are killed as a group when their context
// ends, and Kill does the same on demand during shutdown.
//
// Usage:
//
//	cmd := exec.CommandContext(ctx, "soffice", args...)
//	subprocess.Configure(cmd)
//	err := cmd.Run()
package subprocess
