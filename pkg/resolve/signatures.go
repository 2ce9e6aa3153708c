package resolve

import (
	"github.com/mtkhax/bromhax/pkg/sigscan"
)

var (
	// UART descriptor. The UART base is the word 8 bytes in.
	sigUART = sigscan.Signature{
		Name:    "uart",
		Pattern: sigscan.Pattern{0x5f31, 0x4e45, 0x0f93, 0x000e},
	}
	uartBaseOffset uint32 = 8

	// movw r0, #0x1971 (watchdog unlock key); str r0, [r1, #8]. Preceded by a
	// literal load of the watchdog base.
	sigWatchdog = sigscan.Signature{
		Name:    "watchdog",
		Pattern: sigscan.Pattern{0xf641, 0x1071, 0x6088},
	}

	sigSendUSBResponse = sigscan.Variants{
		{Name: "send_usb_response/a", Pattern: sigscan.Pattern{0xb530, 0x2300, 0x4c6c, 0x2808, 0xd00f, 0x2807}},
		{Name: "send_usb_response/b", Pattern: sigscan.Pattern{0xb510, 0x2400, 0xf04f, 0x5389, 0x2803, 0xd006}},
		{Name: "send_usb_response/c", Pattern: sigscan.Pattern{0xb510, 0x4b72, 0x2400, 0x2803, 0xd006, 0x2802}},
	}

	sigPutData = sigscan.Signature{
		Name:    "usbdl_put_data",
		Pattern: sigscan.Pattern{0xb510, 0x4a06, 0x68d4},
	}

	// push.w {r4-r10, lr}, then two movs from r1/r2 that the lookalikes don't
	// have.
	sigGetData = sigscan.Signature{
		Name:    "usbdl_get_data",
		Pattern: sigscan.Pattern{0xe92d, 0x47f0},
		Checks: []sigscan.ByteCheck{
			{Offset: 7, Any: []byte{0x46}},
			{Offset: 8, Any: []byte{0x92}},
		},
	}

	// push {r4, lr}; bl ...; mov/ldr. Two compiler variants at byte 7.
	sigSBC = sigscan.Signature{
		Name:    "sbc",
		Pattern: sigscan.Pattern{0xb510},
		Checks: []sigscan.ByteCheck{
			{Offset: 3, Any: []byte{0xf0}},
			{Offset: 7, Any: []byte{0x46, 0x49}},
		},
	}

	// Any push {..., lr} directly followed by a bl. The SLA and DAA checks
	// are the first two of those after sbc.
	sigCheckPrologue = sigscan.Signature{
		Name: "check",
		Checks: []sigscan.ByteCheck{
			{Offset: 1, Any: []byte{0xb5}},
			{Offset: 3, Any: []byte{0xf0}},
		},
	}

	// Dump mode primitive. The first match is the one-word sender, the second
	// one the dword sender.
	sigSendWord = sigscan.Signature{
		Name:    "send_word",
		Pattern: sigscan.Pattern{0xe92d, 0x4ff8, 0x4680, 0x468a},
	}
)
