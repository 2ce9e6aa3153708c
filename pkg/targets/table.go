package targets

// Builtin are the chips with known layouts. Function pointers have the Thumb
// bit set.
var Builtin = Table{
	"mt6580": {
		Name:            "mt6580",
		HWCode:          0x6580,
		SendUSBResponse: 0x62e5,
		PutDword:        0xb527,
		PutData:         0xb5ef,
		GetData:         0xb569,
		PassedFlag:      0x1026d8,
		PassedWord:      0x1026d8 + 0x100,
		CheckWord:       0x102798,
		UART:            0x11005000,
	},
	"mt6735": {
		Name:            "mt6735",
		HWCode:          0x321,
		SendUSBResponse: 0x4293,
		PutDword:        0x9513,
		PutData:         0x95db,
		GetData:         0x9555,
		SBC:             0x4f52,
		SLA:             0x4f6a,
		DAA:             0x4f8e,
		PassedFlag:      0x102794,
		PassedWord:      0x102714,
		CheckWord:       0x1026d4,
		Watchdog:        0x10212000,
	},
	"mt6739": {
		Name:            "mt6739",
		HWCode:          0x699,
		SendUSBResponse: 0x508b,
		PutDword:        0xde2f,
		PutData:         0xdeff,
		GetData:         0xde71,
		PassedFlag:      0x102864,
		PassedWord:      0x102a8c,
		CheckWord:       0x102a94,
	},
	"mt6750": {
		Name:            "mt6750",
		HWCode:          0x326,
		SendUSBResponse: 0x449f,
		PutDword:        0x9987,
		PutData:         0x9a4f,
		GetData:         0x99c9,
		PassedFlag:      0x1026dc,
		PassedWord:      0x10271c,
		CheckWord:       0x1027a4,
	},
	"mt6761": {
		Name:            "mt6761",
		HWCode:          0x717,
		SendUSBResponse: 0x2cdf,
		PutDword:        0xbb9f,
		PutData:         0xbc6f,
		GetData:         0xbbe1,
		SBC:             0x39c8,
		SLA:             0x39de,
		DAA:             0x3a02,
		PassedFlag:      0x102860,
		PassedWord:      0x102a8c,
		CheckWord:       0x102a94,
	},
	"mt6765": {
		Name:            "mt6765",
		HWCode:          0x766,
		SendUSBResponse: 0x2d2b,
		PutDword:        0xbcd3,
		PutData:         0xbda3,
		GetData:         0xbd15,
		SBC:             0x3a14,
		SLA:             0x3a2a,
		DAA:             0x3a4e,
		PassedFlag:      0x102860,
		PassedWord:      0x102a8c,
		CheckWord:       0x102a94,
	},
	"mt6768": {
		Name:            "mt6768",
		HWCode:          0x707,
		SendUSBResponse: 0x2c2f,
		PutDword:        0xc0a3,
		PutData:         0xc173,
		GetData:         0xc0e5,
		SBC:             0x3a14,
		SLA:             0x3a2a,
		DAA:             0x3a4e,
		PassedFlag:      0x102860,
		PassedWord:      0x102a8c,
		CheckWord:       0x102a94,
	},
	"mt6771": {
		Name:            "mt6771",
		HWCode:          0x788,
		SendUSBResponse: 0x4daf,
		PutDword:        0xddcf,
		PutData:         0xde9f,
		GetData:         0xde11,
		SBC:             0x5b2b,
		SLA:             0x5b3e,
		DAA:             0x5b62,
		PassedFlag:      0x10286c,
		PassedWord:      0x102acc,
		CheckWord:       0x102ad4,
	},
	"mt6785": {
		Name:            "mt6785",
		HWCode:          0x813,
		SendUSBResponse: 0x4c8f,
		PutDword:        0xe1b7,
		PutData:         0xe287,
		GetData:         0xe1f9,
		PassedFlag:      0x10286c,
		PassedWord:      0x102acc,
		CheckWord:       0x102ad4,
	},
	"mt8127": {
		Name:            "mt8127",
		HWCode:          0x8127,
		SendUSBResponse: 0x62a1,
		PutDword:        0xb1d3,
		PutData:         0xb29b,
		GetData:         0xb215,
		PassedFlag:      0x1027e4,
		PassedWord:      0x102824,
		CheckWord:       0x1028a4,
	},
	"mt8163": {
		Name:            "mt8163",
		HWCode:          0x8163,
		SendUSBResponse: 0x6d6f,
		PutDword:        0xc047,
		PutData:         0xc10f,
		GetData:         0xc089,
		PassedFlag:      0x1027dc,
		PassedWord:      0x10281c,
		CheckWord:       0x10289c,
	},
	"mt8173": {
		Name:            "mt8173",
		HWCode:          0x8172,
		SendUSBResponse: 0x4c5f,
		PutDword:        0x9fff,
		PutData:         0xa0c7,
		GetData:         0xa041,
		PassedFlag:      0x1226e8,
		PassedWord:      0x1226e8 + 0x100,
		CheckWord:       0x1227a8,
	},
	"mt8695": {
		Name:            "mt8695",
		SendUSBResponse: 0x55bb,
		PutDword:        0xbe09,
		PutData:         0xbed1,
		GetData:         0xbe4b,
		PassedFlag:      0x102fbc,
		PassedWord:      0x102fbc + 0x100,
		CheckWord:       0x10307c,
		UART:            0x11003000,
	},
}
