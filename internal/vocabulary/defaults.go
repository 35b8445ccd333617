package vocabulary

// DefaultSynonymGroups is the built-in plant-disease vocabulary. Entries are
// written in natural Vietnamese and normalized when the index is built.
func DefaultSynonymGroups() []SynonymGroup {
	return []SynonymGroup{
		// fungal
		{Canonical: "nấm", Variants: []string{"nấm mốc", "mốc", "bào tử", "sợi nấm"}},
		{Canonical: "mốc", Variants: []string{"nấm mốc", "phấn trắng", "lớp bột"}},
		{Canonical: "đốm", Variants: []string{"vết đốm", "chấm", "đốm lá"}},
		{Canonical: "sắt", Variants: []string{"gỉ sắt", "rỉ sắt", "bột cam"}},
		{Canonical: "phấn", Variants: []string{"phấn trắng", "lớp bột", "bột trắng"}},
		{Canonical: "sương", Variants: []string{"sương mai", "mốc sương", "úng nước"}},

		// bacterial
		{Canonical: "thối", Variants: []string{"thối nhũn", "mục", "úng"}},
		{Canonical: "nhũn", Variants: []string{"thối nhũn", "mềm nhũn"}},
		{Canonical: "nhựa", Variants: []string{"chảy nhựa", "rỉ nhựa", "chảy mủ"}},
		{Canonical: "dịch", Variants: []string{"dịch nhầy", "chảy mủ", "vi khuẩn"}},

		// viral
		{Canonical: "khảm", Variants: []string{"khảm lá", "loang lổ", "vằn"}},
		{Canonical: "xoăn", Variants: []string{"xoăn lá", "quăn", "cuốn lá"}},
		{Canonical: "lùn", Variants: []string{"còi cọc", "chậm lớn"}},

		// leaf symptoms
		{Canonical: "vàng", Variants: []string{"úa vàng", "vàng úa", "chuyển vàng"}},
		{Canonical: "khô", Variants: []string{"khô héo", "khô cháy"}},
		{Canonical: "héo", Variants: []string{"héo rũ", "rũ", "khô héo"}},
		{Canonical: "cháy", Variants: []string{"cháy lá", "cháy mép", "khô cháy"}},
		{Canonical: "rụng", Variants: []string{"rụng lá", "rơi rụng"}},
		{Canonical: "nâu", Variants: []string{"màu nâu", "nâu đen"}},
		{Canonical: "đen", Variants: []string{"thâm đen", "nâu đen"}},
		{Canonical: "trắng", Variants: []string{"bạc trắng", "phấn trắng"}},

		// stem and root symptoms
		{Canonical: "nứt", Variants: []string{"nứt thân", "nứt vỏ"}},
		{Canonical: "loét", Variants: []string{"vết loét", "lở loét"}},
		{Canonical: "lõm", Variants: []string{"vết lõm", "lõm xuống"}},

		// pests
		{Canonical: "sâu", Variants: []string{"sâu ăn lá", "ấu trùng"}},
		{Canonical: "rệp", Variants: []string{"rầy", "bọ"}},
		{Canonical: "rầy", Variants: []string{"rầy nâu", "rệp"}},
		{Canonical: "nhện", Variants: []string{"nhện đỏ", "tơ nhện"}},

		// environmental stress
		{Canonical: "ngập", Variants: []string{"úng nước", "ngập úng"}},
		{Canonical: "hạn", Variants: []string{"thiếu nước", "khô hạn"}},
		{Canonical: "lạnh", Variants: []string{"rét", "sương muối"}},
	}
}

// DefaultStopWords lists Vietnamese function words and generic plant-anatomy
// nouns that say nothing about which disease is present.
func DefaultStopWords() []string {
	return []string{
		// prepositions, conjunctions, particles
		"của", "là", "và", "với", "trên", "dưới", "trong", "ngoài", "tại",
		"từ", "về", "ra", "vào", "lên", "xuống", "bên", "như", "nhưng",
		"hoặc", "hay", "thì", "mà", "nên", "để", "vì", "khi", "đã", "đang",
		"sẽ", "cũng", "này", "đó", "kia", "thấy", "bị", "có", "được",
		"xuất", "hiện", "nhìn",
		// quantifiers
		"các", "những", "một", "nhiều", "mọi", "mỗi", "rất", "hơi", "khá",
		// generic plant anatomy
		"cây", "lá", "thân", "cành", "rễ", "quả", "trái", "hoa", "ngọn",
		"gốc", "vỏ", "mặt", "phần", "chỗ", "cái", "con", "màu",
	}
}

// DefaultSeverityWeights scales confidence by how strongly a qualifier is
// expressed; the strongest qualifiers keep most of the score.
func DefaultSeverityWeights() []SeverityWeight {
	return []SeverityWeight{
		{Term: "nguy kịch", Weight: 1.0},
		{Term: "nghiêm trọng", Weight: 0.9},
		{Term: "nặng", Weight: 0.85},
		{Term: "lan rộng", Weight: 0.8},
		{Term: "trung bình", Weight: 0.7},
		{Term: "vừa phải", Weight: 0.7},
		{Term: "nhẹ", Weight: 0.5},
		{Term: "lác đác", Weight: 0.5},
	}
}
