package frame

import (
	"sync"

	"github.com/tigerlang/tigerc/pkg/temp"
)

// Named machine registers for the x86 target (spec §4.4): fp, sp,
// return-value, caller-saves, callee-saves, and all-usable-registers are
// exposed as named temps, pre-coloured to their own string in the
// allocator's initial colouring.
var (
	regsOnce sync.Once

	fp, sp, ra, rv                   temp.Temp
	eax, ecx, edx, ebx, esi, edi     temp.Temp
	callerSaves, calleeSaves, allRegs []temp.Temp
	namedMap                          *temp.Map
)

func initRegisters() {
	fp, sp, ra, rv = temp.NewTemp(), temp.NewTemp(), temp.NewTemp(), temp.NewTemp()
	eax, ecx, edx, ebx, esi, edi = temp.NewTemp(), temp.NewTemp(), temp.NewTemp(), temp.NewTemp(), temp.NewTemp(), temp.NewTemp()

	// cdecl: eax/ecx/edx are caller-saved (may be clobbered across a call);
	// ebx/esi/edi are callee-saved (must be preserved by entry-exit-3).
	callerSaves = []temp.Temp{eax, ecx, edx}
	calleeSaves = []temp.Temp{ebx, esi, edi}
	allRegs = append(append([]temp.Temp{}, callerSaves...), calleeSaves...)

	namedMap = temp.NewMap()
	namedMap.Bind(fp, "%ebp")
	namedMap.Bind(sp, "%esp")
	namedMap.Bind(rv, "%eax")
	namedMap.Bind(eax, "%eax")
	namedMap.Bind(ecx, "%ecx")
	namedMap.Bind(edx, "%edx")
	namedMap.Bind(ebx, "%ebx")
	namedMap.Bind(esi, "%esi")
	namedMap.Bind(edi, "%edi")
}

func ensure() { regsOnce.Do(initRegisters) }

// FP returns the frame-pointer temp.
func FP() temp.Temp { ensure(); return fp }

// SP returns the stack-pointer temp.
func SP() temp.Temp { ensure(); return sp }

// RA returns the placeholder return-address temp referenced by
// entry-exit-2's liveness sink (x86 keeps the return address on the stack,
// not in a register, but the sink still needs a handle for it).
func RA() temp.Temp { ensure(); return ra }

// RV returns the return-value register (eax).
func RV() temp.Temp { ensure(); return rv }

// DivRemainder returns the register idiv leaves its remainder in (edx on
// this target); divl/idivl hard-code both eax and edx, so codegen's
// division sequence binds this explicitly rather than letting the
// allocator pick.
func DivRemainder() temp.Temp { ensure(); return edx }

// CallerSaves returns the caller-saved general-purpose registers.
func CallerSaves() []temp.Temp { ensure(); return append([]temp.Temp{}, callerSaves...) }

// CalleeSaves returns the callee-saved general-purpose registers.
func CalleeSaves() []temp.Temp { ensure(); return append([]temp.Temp{}, calleeSaves...) }

// AllRegisters returns every usable machine register, caller- then
// callee-saved.
func AllRegisters() []temp.Temp { ensure(); return append([]temp.Temp{}, allRegs...) }

// NamedRegisters returns the process-wide layered map binding every machine
// register temp to its assembly name, used to pre-colour the allocator and
// to render -dfinal dumps.
func NamedRegisters() *temp.Map { ensure(); return namedMap }
