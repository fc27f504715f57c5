package api

import (
	stdelf "debug/elf"

	"github.com/samcharles93/elfcopyflat/internal/flatten"
	"github.com/samcharles93/elfcopyflat/pkg/elf"
)

// HeaderInfo is the JSON view of an ELF file header.
type HeaderInfo struct {
	Class       string `json:"class"`
	Data        string `json:"data"`
	OSABI       uint8  `json:"osabi"`
	ABIVersion  uint8  `json:"abi_version"`
	Type        string `json:"type"`
	Machine     string `json:"machine"`
	MachineCode uint16 `json:"machine_code"`
	Entry       uint64 `json:"entry"`
	Phoff       uint64 `json:"phoff"`
	Shoff       uint64 `json:"shoff"`
	Flags       uint32 `json:"flags"`
	Phentsize   uint16 `json:"phentsize"`
	Phnum       uint16 `json:"phnum"`
	Shnum       uint16 `json:"shnum"`
}

// SegmentInfo is the JSON view of one program header.
type SegmentInfo struct {
	Index    int    `json:"index"`
	Type     string `json:"type"`
	Flags    string `json:"flags"`
	Offset   uint64 `json:"offset"`
	Filesz   uint64 `json:"filesz"`
	Vaddr    uint64 `json:"vaddr"`
	Paddr    uint64 `json:"paddr"`
	Memsz    uint64 `json:"memsz"`
	Align    uint64 `json:"align"`
	Selected bool   `json:"selected"`
}

type OverlapInfo struct {
	Addr    uint64 `json:"addr"`
	Size    uint64 `json:"size"`
	Next    uint64 `json:"next"`
	Message string `json:"message"`
}

// InspectResponse describes an image and what a conversion would copy.
type InspectResponse struct {
	Header   HeaderInfo    `json:"header"`
	Segments []SegmentInfo `json:"segments"`
	Selected int           `json:"selected"`
	Base     uint64        `json:"base"`
	Size     uint64        `json:"size"`
	Overlaps []OverlapInfo `json:"overlaps,omitempty"`
}

// NewInspectResponse builds the report for the full program header table
// progs, marking the entries res selected under f.
func NewInspectResponse(res *flatten.Result, progs []elf.Prog, f flatten.Filter) InspectResponse {
	h := &res.Header
	out := InspectResponse{
		Header: HeaderInfo{
			Class:       h.Ident.Class.String(),
			Data:        h.Ident.Data.String(),
			OSABI:       h.Ident.OSABI,
			ABIVersion:  h.Ident.ABIVersion,
			Type:        h.Type.String(),
			Machine:     MachineName(h.Machine),
			MachineCode: h.Machine,
			Entry:       h.Entry,
			Phoff:       h.Phoff,
			Shoff:       h.Shoff,
			Flags:       h.Flags,
			Phentsize:   h.Phentsize,
			Phnum:       h.Phnum,
			Shnum:       h.Shnum,
		},
		Segments: make([]SegmentInfo, 0, len(progs)),
		Selected: len(res.Segments),
		Base:     res.Base,
		Size:     ImageSize(res.Segments, res.Base),
	}
	for i := range progs {
		p := &progs[i]
		out.Segments = append(out.Segments, SegmentInfo{
			Index:    i,
			Type:     p.Type.String(),
			Flags:    p.Flags.String(),
			Offset:   p.Off,
			Filesz:   p.Filesz,
			Vaddr:    p.Vaddr,
			Paddr:    p.Paddr,
			Memsz:    p.Memsz,
			Align:    p.Align,
			Selected: f.Match(p),
		})
	}
	for _, o := range res.Overlaps {
		out.Overlaps = append(out.Overlaps, OverlapInfo{
			Addr:    o.Addr,
			Size:    o.Size,
			Next:    o.Next,
			Message: o.Error(),
		})
	}
	return out
}

// MachineName returns the EM_* name for code, e.g. "EM_X86_64".
func MachineName(code uint16) string {
	return stdelf.Machine(code).String()
}

// ImageSize is the length of the file-backed part of the flat image: the end
// of the furthest segment's file bytes relative to base. Segments below base
// are ignored.
func ImageSize(sorted []elf.Prog, base uint64) uint64 {
	var end uint64
	for i := range sorted {
		p := &sorted[i]
		if p.Vaddr < base || p.Filesz == 0 {
			continue
		}
		end = max(end, p.Vaddr-base+p.Filesz)
	}
	return end
}
