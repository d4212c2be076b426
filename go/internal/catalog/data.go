package catalog

import "github.com/mcdev12/respawn/go/internal/models"

func entity(name string, hours float64, aliases ...string) models.Entity {
	return models.Entity{Name: name, Interval: Hours(hours), Aliases: aliases}
}

func defaultEntities() []models.Entity {
	return []models.Entity{
		entity("不死鳥", 8),
		entity("伊弗利特", 2, "伊佛", "EF", "ef"),
		entity("大黑長者", 3, "大黑"),
		entity("暗黑長者", 6),
		entity("巨大飛龍", 6, "巨飛"),
		entity("861左飛龍", 2, "西左", "左飛"),
		entity("862右飛龍", 2, "西右", "右飛"),
		entity("83飛龍", 3, "中飛"),
		entity("85飛龍", 3, "東飛"),
		entity("變形怪首領", 3.5, "變怪"),
		entity("強盜頭目", 3, "強盜"),
		entity("綠王", 2),
		entity("紅王", 2),
		entity("四色", 2),
		entity("魔法師", 2),
		entity("死亡騎士", 4, "死騎"),
		entity("力卡溫", 8, "狼王"),
		entity("克特", 10),
		entity("古代巨人", 8.5, "古巨"),
		entity("惡魔監視者", 6),
		entity("曼波兔王", 3),
		entity("暗黑大將軍貝里斯", 6),
		entity("賽尼斯的分身", 3, "賽老師"),
		entity("卡司特王", 7.5, "卡王"),
		entity("樹精", 3),
		entity("烏勒庫斯", 6, "烏王"),
		entity("奈克諾斯", 4, "奈王"),
		entity("蜘蛛", 4),
		entity("巨大鱷魚", 3, "巨鱷"),
		entity("大腳瑪幽", 3, "大腳"),
		entity("巨大守護螞蟻", 3.5, "螞蟻"),
		entity("巨型蠕蟲(海底)", 2, "海蟲"),
	}
}

var weekdays = []int{1, 2, 3, 4, 5}

func defaultFixed() []models.FixedEntity {
	return []models.FixedEntity{
		{Name: "奇岩1樓", Location: "奇岩地監", SpawnTimes: []string{"06:00", "12:00", "18:00", "00:00"}, Days: weekdays, Description: "週一至週五"},
		{Name: "奇岩2樓", Location: "奇岩地監", SpawnTimes: []string{"07:00", "14:00", "21:00"}, Days: weekdays, Description: "週一至週五"},
		{Name: "奇岩3樓", Location: "奇岩地監", SpawnTimes: []string{"20:15"}, Days: weekdays, Description: "週一至週五"},
		{Name: "奇岩4樓", Location: "奇岩地監", SpawnTimes: []string{"21:15"}, Days: weekdays, Description: "週一至週五"},
		{Name: "魔法師", SpawnTimes: []string{"01:00", "03:00", "05:00", "07:00", "09:00", "11:00", "13:00", "15:00", "17:00", "19:00", "21:00", "23:00"}, Description: "每天單數小時"},
		{Name: "巴風特", Location: "冒險洞穴", SpawnTimes: []string{"14:00", "20:00"}, Description: "14:00~14:30 / 20:00~20:30 (間隔6H)"},
		{Name: "暗黑地監4F王(週日)", SpawnTimes: []string{"18:00"}, Days: []int{0}, Description: "週日限定"},
		{Name: "惡魔", Location: "象牙塔", SpawnTimes: []string{"22:00"}, Description: "每天"},
		{Name: "古代兵器復仇者", SpawnTimes: []string{"22:30"}, Description: "每天"},
		{Name: "異界的惡魔", SpawnTimes: []string{"23:00"}, Description: "每天"},
		{Name: "烈焰的死亡騎士", SpawnTimes: []string{"23:30"}, Description: "每天"},
		{Name: "暗黑地監4F王(夜)", SpawnTimes: []string{"00:00"}, Description: "每天"},
	}
}
