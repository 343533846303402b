package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"

	"techroute/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":             s.Config.Server.Port,
			"rateRps":          s.Config.Server.RateRPS,
			"rateBurst":        s.Config.Server.RateBurst,
			"solver":           s.Config.Solver,
			"hasDatabaseUrl":   s.Config.Database.URL != "",
			"hasRedisUrl":      s.Config.Redis.URL != "",
			"migrateOnStartup": s.Config.Database.Migrate,
		},
		"runtime": map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"gomaxprocs": runtime.GOMAXPROCS(0),
		},
	}
	hostInfo := map[string]any{}
	if vm, err := mem.VirtualMemory(); err == nil {
		hostInfo["memTotal"] = vm.Total
		hostInfo["memUsedPercent"] = vm.UsedPercent
	}
	if cs, err := cpu.Info(); err == nil && len(cs) > 0 {
		hostInfo["cpuModel"] = cs[0].ModelName
		hostInfo["cpus"] = len(cs)
	}
	if h, err := host.Info(); err == nil {
		hostInfo["os"] = h.OS
		hostInfo["platform"] = h.Platform
		hostInfo["uptimeSec"] = h.Uptime
	}
	info["host"] = hostInfo
	writeJSON(w, http.StatusOK, info)
}
