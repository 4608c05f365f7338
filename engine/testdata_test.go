package engine

// --- Test Fixtures ---

func platformRows() []Row {
	return []Row{
		{"platform": String("淘宝"), "gmv": Number(100)},
		{"platform": String("淘宝"), "gmv": Number(50)},
		{"platform": String("抖音"), "gmv": Number(80)},
	}
}

func salesRows() []Row {
	return []Row{
		{"日期": String("2025-01-15"), "平台": String("淘宝"), "客户": String("A"), "gmv": Number(120), "成本": Number(70)},
		{"日期": String("2025-02-03"), "平台": String("抖音"), "客户": String("B"), "gmv": Number(90), "成本": Number(40)},
		{"日期": String("2025-03-15"), "平台": String("淘宝"), "客户": String("B"), "gmv": Number(60), "成本": Number(30)},
		{"日期": String("2025-04-01"), "平台": String("快手"), "客户": String("C"), "gmv": String("45.5"), "成本": Number(20)},
		{"日期": String("2025-07-20"), "平台": String("抖音"), "客户": String("A"), "gmv": Number(200), "成本": Null()},
		{"日期": String("2024-12-31"), "平台": Null(), "客户": String("C"), "gmv": String("n/a"), "成本": Number(5)},
	}
}
