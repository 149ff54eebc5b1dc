package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sekai02/pagewrite/internal/device"
	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/session"
	"github.com/sekai02/pagewrite/internal/sys"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, nvm.ErrMisaligned), errors.Is(err, nvm.ErrOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, device.ErrStreamOpen):
		status = http.StatusConflict
	case errors.Is(err, device.ErrNotFound), errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}

// parseAddr accepts decimal, 0x hex and 0 octal addresses.
func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

func queryAddr(r *http.Request, name string) (uint32, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	return parseAddr(s)
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 0, 64)
}

func handleDevices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		devices, err := service.DeviceList(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]uint64{"devices": devices})
	case http.MethodPost:
		req := struct {
			HwID string `json:"hw_id"`
			sys.Geometry
		}{Geometry: sys.DefaultGeometry()}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		devID, err := service.RegisterDevice(r.Context(), req.HwID, req.Geometry)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]uint64{"device_id": devID})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleDeviceOps(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/devices/")
	parts := strings.Split(path, "/")

	dev, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "invalid device ID", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		info, err := service.DeviceInfo(r.Context(), dev)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
		return
	}

	switch parts[1] {
	case "mem":
		handleMem(w, r, dev)
	case "byte":
		handleByte(w, r, dev)
	case "pages":
		if len(parts) != 3 {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		handleErase(w, r, dev, parts[2])
	case "crc":
		handleCRC(w, r, dev)
	default:
		http.Error(w, "unknown operation", http.StatusBadRequest)
	}
}

func handleMem(w http.ResponseWriter, r *http.Request, dev uint64) {
	off, err := queryAddr(r, "off")
	if err != nil {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		length, err := queryInt(r, "len", 1<<30)
		if err != nil {
			http.Error(w, "invalid length", http.StatusBadRequest)
			return
		}

		data, err := service.Read(r.Context(), dev, off, length)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		n, err := service.WriteBlock(r.Context(), dev, off, data)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"written": n})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleByte(w http.ResponseWriter, r *http.Request, dev uint64) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Addr  uint32 `json:"addr"`
		Value byte   `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := service.PutByte(r.Context(), dev, req.Addr, req.Value); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleErase(w http.ResponseWriter, r *http.Request, dev uint64, addrStr string) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	addr, err := parseAddr(addrStr)
	if err != nil {
		http.Error(w, "invalid page address", http.StatusBadRequest)
		return
	}

	if err := service.ErasePage(r.Context(), dev, addr); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleCRC(w http.ResponseWriter, r *http.Request, dev uint64) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	off, err := queryAddr(r, "off")
	if err != nil {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}
	length, err := queryInt(r, "len", 1<<30)
	if err != nil {
		http.Error(w, "invalid length", http.StatusBadRequest)
		return
	}

	sum, err := service.Checksum(r.Context(), dev, off, length)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		DeviceID uint64 `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sid, err := service.StreamOpen(r.Context(), req.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"session_id": sid})
}

func handleStreamOps(w http.ResponseWriter, r *http.Request) {
	sid, err := strconv.ParseUint(strings.TrimPrefix(r.URL.Path, "/v1/streams/"), 10, 64)
	if err != nil {
		http.Error(w, "invalid session ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		info, err := service.StreamInfo(r.Context(), sid)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	case http.MethodPut:
		addr, err := parseAddr(r.URL.Query().Get("addr"))
		if err != nil {
			http.Error(w, "invalid address", http.StatusBadRequest)
			return
		}
		finalize := r.URL.Query().Get("finalize") == "true"

		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		n, err := service.StreamWrite(r.Context(), sid, addr, data, finalize)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"written": n})
	case http.MethodDelete:
		if err := service.StreamClose(r.Context(), sid); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		DeviceID uint64 `json:"device_id"`
		Addr     uint32 `json:"addr"`
		Path     string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n, err := service.ImportFile(r.Context(), req.DeviceID, req.Addr, req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"written": n})
}

func handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dev, err := strconv.ParseUint(strings.TrimPrefix(r.URL.Path, "/v1/export/"), 10, 64)
	if err != nil {
		http.Error(w, "invalid device ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Addr   uint32 `json:"addr"`
		Length int64  `json:"length"`
		Path   string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := service.ExportFile(r.Context(), dev, req.Addr, req.Length, req.Path); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
